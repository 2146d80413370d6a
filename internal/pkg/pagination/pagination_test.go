package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromContextClamps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=-3&size=1000", nil)

	q := FromContext(c)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxSize, q.Size)
}

func TestMeta(t *testing.T) {
	q := Query{Page: 2, Size: 10}
	assert.EqualValues(t, 10, q.Skip())
	assert.EqualValues(t, 10, q.Limit())

	meta := q.Meta(25)
	assert.Equal(t, 3, meta.TotalPage)
	assert.True(t, meta.HasNextPage)
	assert.False(t, Query{Page: 3, Size: 10}.Meta(25).HasNextPage)
}
