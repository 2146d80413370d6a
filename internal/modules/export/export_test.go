package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

type fakeDiaries []models.Diary

func (f fakeDiaries) All(context.Context) ([]models.Diary, error) { return f, nil }

func (f fakeDiaries) Get(_ context.Context, id string) (*models.Diary, error) {
	for i := range f {
		if f[i].ID == id {
			return &f[i], nil
		}
	}
	return nil, apperr.NotFound("diary not found")
}

type fakeCards map[string][]models.Card

func (f fakeCards) List(_ context.Context, diaryID string) ([]models.Card, error) {
	return f[diaryID], nil
}

var created = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newService() *Service {
	diaries := fakeDiaries{{
		Base:             models.Base{ID: "d1", CreatedAt: created, UpdatedAt: created},
		ClientID:         "c-1",
		Name:             "Doe, Jane",
		Gender:           models.GenderFemale,
		URL:              "https://diary.test/diary/d1",
		CardReadingCount: 3,
		PasswordHash:     "secret",
	}}
	cards := fakeCards{"d1": {
		{Topic: "Anger", BodyText: "<p>felt <b>hot</b></p><p>then calm</p>", Order: 1},
		{Topic: "Relief", BodyText: "", Order: 1.5},
	}}
	return NewService(diaries, cards, nil)
}

func parse(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteDiaries(t *testing.T) {
	var buf bytes.Buffer
	n, err := newService().WriteDiaries(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want := [][]string{
		diaryHeader,
		{"d1", "c-1", "Doe, Jane", "female", "https://diary.test/diary/d1", "3", "2026-03-01T09:30:00Z", "2026-03-01T09:30:00Z"},
	}
	if diff := cmp.Diff(want, parse(t, buf.Bytes())); diff != "" {
		t.Errorf("diaries csv mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, buf.String(), "secret")
}

func TestWriteCardsStripsHTML(t *testing.T) {
	var buf bytes.Buffer
	n, err := newService().WriteCards(context.Background(), &buf, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := [][]string{
		cardHeader,
		{"1", "Anger", "felt hot then calm"},
		{"1.5", "Relief", ""},
	}
	if diff := cmp.Diff(want, parse(t, buf.Bytes())); diff != "" {
		t.Errorf("cards csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCardsUnknownDiary(t *testing.T) {
	_, err := newService().WriteCards(context.Background(), &bytes.Buffer{}, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(newService()).RegisterRoutes(r.Group("/api/v1"), func(c *gin.Context) { c.Next() })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/export/diaries/d1/cards.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, csvContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "diary-d1-cards.csv")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/export/diaries/nope/cards.csv", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
