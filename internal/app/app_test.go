package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/config"
	pkgredis "github.com/mx-space/diary/internal/pkg/redis"
	"github.com/mx-space/diary/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Parse([]byte("store: memory\nenv: production\n"))
	require.NoError(t, err)
	cfg.Paths.Backups = t.TempDir()
	cfg.Paths.Logs = t.TempDir()
	cfg.JWTSecret = "app-test"
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.Admin.PasswordHash = string(hash)
	require.NoError(t, applyRuntimeSettings(cfg, zap.NewNop()))

	mr := miniredis.RunT(t)
	rc, err := pkgredis.Connect("redis://" + mr.Addr())
	require.NoError(t, err)

	a, err := Assemble(zap.NewNop(), cfg, store.NewMemory(), rc)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a
}

func call(a *App, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestDiaryFlow(t *testing.T) {
	a := newTestApp(t)

	w := call(a, http.MethodGet, "/ping", "", "")
	assert.Equal(t, "pong", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(a, http.MethodGet, "/api/v1/diaries", "", "").Code)

	w = call(a, http.MethodPost, "/api/v1/auth/login", `{"password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	decode(t, w, &login)
	token := login.Token

	w = call(a, http.MethodPost, "/api/v1/diaries", `{"clientId":"c-1","name":"Jane","gender":"female"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	decode(t, w, &created)
	require.Len(t, created.Data, 1)
	id := created.Data[0].ID
	assert.True(t, strings.HasSuffix(created.Data[0].URL, "/diary/"+id))

	w = call(a, http.MethodPost, "/api/v1/diaries/"+id+"/cards", `{"topic":"Anger","bodyText":"<p>hot</p>"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(a, http.MethodGet, "/api/v1/diaries/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var read struct {
		Cards []struct {
			Topic string `json:"topic"`
		} `json:"cards"`
	}
	decode(t, w, &read)
	require.Len(t, read.Cards, 1)
	assert.Equal(t, "Anger", read.Cards[0].Topic)

	w = call(a, http.MethodGet, "/api/v1/export/diaries/"+id+"/cards.csv", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Anger,hot")
}

func TestMaintenanceRoutes(t *testing.T) {
	a := newTestApp(t)
	w := call(a, http.MethodPost, "/api/v1/auth/login", `{"password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, w, &login)

	w = call(a, http.MethodGet, "/api/v1/cron", "", login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "search_reindex")
	assert.NotContains(t, w.Body.String(), `"backup"`, "backup job needs backup.enable")

	assert.Equal(t, http.StatusNoContent, call(a, http.MethodPost, "/api/v1/cron/search_reindex/run", "", login.Token).Code)
	assert.Equal(t, http.StatusNotFound, call(a, http.MethodPost, "/api/v1/cron/nope/run", "", login.Token).Code)

	w = call(a, http.MethodPost, "/api/v1/backups", "", login.Token)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(a, http.MethodGet, "/api/v1/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchOriginPattern(t *testing.T) {
	cases := []struct {
		pattern, origin string
		want            bool
	}{
		{"diary.example.com", "https://diary.example.com", true},
		{"*.example.com", "https://admin.example.com", true},
		{"*.example.com", "https://example.org", false},
		{"localhost:*", "http://localhost:5173", true},
		{"*", "https://anything.test", true},
		{"Diary.Example.com", "https://DIARY.example.com", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchOriginPattern(tc.pattern, extractOriginHost(tc.origin)), "%s vs %s", tc.pattern, tc.origin)
	}
}
