package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtpkg "github.com/mx-space/diary/internal/pkg/jwt"
	redispkg "github.com/mx-space/diary/internal/pkg/redis"
	sessionpkg "github.com/mx-space/diary/internal/pkg/session"
)

func init() { gin.SetMode(gin.TestMode) }

func newRedis(t *testing.T) *redispkg.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := redispkg.Connect("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequiresLiveSession(t *testing.T) {
	jwtpkg.SetSecret("mw-test")
	sessions := sessionpkg.NewStore(newRedis(t), time.Hour)
	token, sess, err := sessions.Issue(context.Background(), "", "")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", Auth(sessions), func(c *gin.Context) { c.String(http.StatusOK, CurrentSessionID(c)) })

	assert.Equal(t, http.StatusUnauthorized, do(r, "GET", "/admin", "", nil).Code)

	w := do(r, "GET", "/admin", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sess.ID, w.Body.String())

	require.NoError(t, sessions.Revoke(context.Background(), sess.ID))
	assert.Equal(t, http.StatusUnauthorized, do(r, "GET", "/admin?token="+token, "", nil).Code)
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(newRedis(t), RateLimitOptions{Name: "login", Max: 2, Window: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "POST", "/login", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, "POST", "/login", "", nil).Code)
	w := do(r, "POST", "/login", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "61", w.Header().Get("Retry-After"))
}

func TestIdempotenceRejectsReplay(t *testing.T) {
	status := http.StatusCreated
	r := gin.New()
	r.POST("/diaries", Idempotence(newRedis(t)), func(c *gin.Context) { c.Status(status) })

	body := `[{"clientId":"c1","name":"A"}]`
	assert.Equal(t, http.StatusCreated, do(r, "POST", "/diaries", body, nil).Code)
	assert.Equal(t, http.StatusConflict, do(r, "POST", "/diaries", body, nil).Code)
	assert.Equal(t, http.StatusCreated, do(r, "POST", "/diaries", `[{"clientId":"c2","name":"B"}]`, nil).Code)

	status = http.StatusBadRequest
	hdr := map[string]string{IdempotenceHeader: "k1"}
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/diaries", body, hdr).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "POST", "/diaries", body, hdr).Code, "failed requests release the key")
}
