package editor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/modules/content/card"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authMW := func(c *gin.Context) {
		c.Set(middleware.ContextKeySID, "sid")
		c.Next()
	}
	NewHandler(f.mgr).RegisterRoutes(r.Group("/api/v1"), authMW)
	return r
}

func request(t *testing.T, r http.Handler, method, path, body string, wantStatus int, out interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, wantStatus, w.Code, w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

func TestEditorRoutes(t *testing.T) {
	f := newFixture(t, time.Hour)
	r := newRouter(f)

	var st State
	request(t, r, http.MethodPost, "/api/v1/editor/sessions", `{"diaryId":"d1"}`, http.StatusCreated, &st)
	require.Len(t, st.Cards, 1)
	base := "/api/v1/editor/sessions/" + st.SessionID
	owner, ok := f.mgr.Owner(st.SessionID)
	require.True(t, ok)
	assert.Equal(t, "sid", owner)

	request(t, r, http.MethodPost, base+"/add", "", http.StatusOK, &st)
	require.Len(t, st.Cards, 2)
	assert.Equal(t, 1, st.Current)
	request(t, r, http.MethodPost, base+"/prev", "", http.StatusOK, &st)
	assert.Equal(t, 0, st.Current)

	request(t, r, http.MethodPost, base+"/edit", `{"topic":"First"}`, http.StatusOK, &st)
	assert.Equal(t, "First", st.Cards[0].Topic)
	assert.Equal(t, []string{st.Cards[0].ID}, st.Dirty)
	assert.Equal(t, card.DefaultTopic, f.stored(t, "d1")[0].Topic, "written only after the debounce")

	request(t, r, http.MethodPost, base+"/next", "", http.StatusOK, &st)
	assert.Equal(t, 1, st.Current)
	assert.Empty(t, st.Dirty)
	assert.Equal(t, "First", f.stored(t, "d1")[0].Topic, "navigation flushes the pending write")

	request(t, r, http.MethodPost, base+"/goto", `{"index":0}`, http.StatusOK, &st)
	assert.Equal(t, 0, st.Current)
	request(t, r, http.MethodPost, base+"/goto", `{"index":9}`, http.StatusBadRequest, nil)
	request(t, r, http.MethodPost, base+"/edit", `{}`, http.StatusBadRequest, nil)

	var undo struct {
		State   State `json:"state"`
		Applied bool  `json:"applied"`
	}
	request(t, r, http.MethodPost, base+"/undo", "", http.StatusOK, &undo)
	assert.True(t, undo.Applied)
	assert.Equal(t, card.DefaultTopic, undo.State.Cards[0].Topic)

	request(t, r, http.MethodGet, base, "", http.StatusOK, &st)
	assert.Len(t, st.Cards, 2)

	request(t, r, http.MethodDelete, base, "", http.StatusNoContent, nil)
	request(t, r, http.MethodGet, base, "", http.StatusNotFound, nil)
	request(t, r, http.MethodPost, base+"/next", "", http.StatusNotFound, nil)
}

func TestEditorReorderRoute(t *testing.T) {
	f := newFixture(t, time.Hour)
	r := newRouter(f)

	var st State
	request(t, r, http.MethodPost, "/api/v1/editor/sessions", `{"diaryId":"d1"}`, http.StatusCreated, &st)
	first := st.Cards[0].ID
	base := "/api/v1/editor/sessions/" + st.SessionID
	request(t, r, http.MethodPost, base+"/duplicate", "", http.StatusOK, &st)
	require.Len(t, st.Cards, 2)
	assert.Equal(t, card.CopyTopic(card.DefaultTopic), st.Cards[1].Topic)

	request(t, r, http.MethodPost, base+"/reorder", `{"cardId":"`+first+`","targetIndex":1}`, http.StatusOK, &st)
	assert.Equal(t, first, st.Cards[1].ID)
	assert.Equal(t, 1, st.Current)
	stored := f.stored(t, "d1")
	assert.Equal(t, first, stored[1].ID)

	request(t, r, http.MethodPost, base+"/reorder", `{"targetIndex":1}`, http.StatusBadRequest, nil)
	request(t, r, http.MethodPost, "/api/v1/editor/sessions", `{"diaryId":"missing"}`, http.StatusNotFound, nil)
}
