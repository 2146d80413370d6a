package card

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

type diarySet map[string]bool

func (d diarySet) Exists(_ context.Context, id string) error {
	if !d[id] {
		return apperr.NotFound("diary not found")
	}
	return nil
}

type staticSeeder struct{}

func (staticSeeder) Seed(_ context.Context, situationID string) (string, string, error) {
	if situationID != "s1" {
		return "", "", apperr.NotFound("situation not found")
	}
	return "Conflict at work", "<ul><li>Felt tense</li></ul>", nil
}

func newRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	svc, _ := newService(t)
	svc.SetSeeder(staticSeeder{})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authMW := func(c *gin.Context) { c.Next() }
	NewHandler(svc, diarySet{"d1": true}).RegisterRoutes(r.Group("/api/v1"), authMW)
	return r, svc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func topics(cards []models.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Topic
	}
	return out
}

func TestReorderRoute(t *testing.T) {
	ctx := context.Background()
	r, svc := newRouter(t)
	for i, topic := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, "d1", topic, "", float64(i)+0.5)
		require.NoError(t, err)
	}
	cards, err := svc.List(ctx, "d1")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/v1/diaries/d1/cards/reorder", `{"cardId":"`+cards[0].ID+`","targetIndex":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Data []models.Card `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, []string{"B", "C", "A"}, topics(out.Data))

	stored, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, topics(stored))
	assert.Equal(t, []float64{1, 2, 3}, orders(stored))

	w = do(r, http.MethodPost, "/api/v1/diaries/d1/cards/reorder", `{"cardId":"nope","targetIndex":0}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodPost, "/api/v1/diaries/d1/cards/reorder", `{"targetIndex":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDuplicateRoute(t *testing.T) {
	ctx := context.Background()
	r, svc := newRouter(t)
	id, err := svc.Create(ctx, "d1", "Anger", "<p>hot</p>", 1)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "d1", "Next", "", 2)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/v1/cards/"+id+"/duplicate", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dup models.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dup))
	assert.Equal(t, "Anger (Copy)", dup.Topic)
	assert.Equal(t, "<p>hot</p>", dup.BodyText)
	assert.Equal(t, 1.5, dup.Order)

	stored, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Anger", "Anger (Copy)", "Next"}, topics(stored))

	w = do(r, http.MethodPost, "/api/v1/cards/missing/duplicate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAndDeleteRoutes(t *testing.T) {
	ctx := context.Background()
	r, svc := newRouter(t)
	id, err := svc.Create(ctx, "d1", "Draft", "", 1)
	require.NoError(t, err)

	w := do(r, http.MethodPatch, "/api/v1/cards/"+id, `{"topic":"Final"}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = do(r, http.MethodGet, "/api/v1/cards/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"topic":"Final"`)

	w = do(r, http.MethodPatch, "/api/v1/cards/"+id, `{"topic":"`+strings.Repeat("x", MaxTopicLength+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing cards are a quiet no-op on writes.
	w = do(r, http.MethodPatch, "/api/v1/cards/missing", `{"topic":"x"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/cards/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/api/v1/cards/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAndFromSituationRoutes(t *testing.T) {
	ctx := context.Background()
	r, svc := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/diaries/d1/cards", `{}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"topic":"`+DefaultTopic+`"`)

	w = do(r, http.MethodPost, "/api/v1/diaries/d1/cards/from-situation", `{"situationId":"s1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	stored, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTopic, "Conflict at work"}, topics(stored))
	assert.Equal(t, "<ul><li>Felt tense</li></ul>", stored[1].BodyText)

	w = do(r, http.MethodPost, "/api/v1/diaries/d1/cards/from-situation", `{"situationId":"s2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodPost, "/api/v1/diaries/other/cards", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
