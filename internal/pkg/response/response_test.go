package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/pkg/apperr"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	r.GET("/", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.NotFound("diary not found"), http.StatusNotFound},
		{apperr.Unauthorized("no"), http.StatusUnauthorized},
		{apperr.Locked("locked"), http.StatusLocked},
		{apperr.Store("update card", errors.New("mongo: socket closed")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w, body := serve(t, func(c *gin.Context) { Error(c, tc.err) })
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.EqualValues(t, 0, body["ok"])
		assert.EqualValues(t, tc.status, body["code"])
	}
}

func TestErrorHidesDriverText(t *testing.T) {
	_, body := serve(t, func(c *gin.Context) {
		Error(c, apperr.Store("update card", errors.New("mongo: socket closed")))
	})
	assert.Equal(t, "failed to update card", body["message"])

	_, body = serve(t, func(c *gin.Context) { Error(c, errors.New("raw driver text")) })
	assert.Equal(t, "internal error", body["message"])
}

func TestOKWrapsSlices(t *testing.T) {
	_, body := serve(t, func(c *gin.Context) { OK(c, []string{"a"}) })
	assert.Equal(t, []any{"a"}, body["data"])
}
