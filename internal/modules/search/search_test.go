package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/store"
)

func seed(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sits := []models.Situation{
		{Base: models.Base{ID: "s1"}, Title: "Argument with a friend", Order: 1},
		{Base: models.Base{ID: "s2"}, Title: "Job interview", Order: 2},
	}
	for i := range sits {
		sits[i].Stamp(now)
		require.NoError(t, mem.Insert(ctx, models.CollectionSituations, &sits[i]))
	}
	before := models.BeforeItem{Base: models.Base{ID: "b1"}, SituationID: "s2", Text: "Felt NERVOUS all morning", Order: 1}
	before.Stamp(now)
	require.NoError(t, mem.Insert(ctx, models.CollectionBeforeItems, &before))
	after := models.AfterItem{Base: models.Base{ID: "a1"}, SituationID: "s2", BeforeItemID: "b1", Text: "Proud I went", Order: 1}
	after.Stamp(now)
	require.NoError(t, mem.Insert(ctx, models.CollectionAfterItems, &after))
}

func newService(t *testing.T) *Service {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close(context.Background()) })
	seed(t, mem)
	return NewService(mem, appcfg.MeiliSearchRuntimeConfig{}, nil)
}

func TestScanFallback(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	hits, err := svc.Search(ctx, "friend", 0)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{ID: "s1", Title: "Argument with a friend"}}, hits)

	hits, err = svc.Search(ctx, "nervous", 0)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{ID: "s2", Title: "Job interview", Snippet: "Felt NERVOUS all morning"}}, hits)

	hits, err = svc.Search(ctx, "proud", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s2", hits[0].ID)

	hits, err = svc.Search(ctx, "nothing matches", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestScanLimit(t *testing.T) {
	svc := newService(t)
	hits, err := svc.Search(context.Background(), "i", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchValidation(t *testing.T) {
	svc := newService(t)
	_, err := svc.Search(context.Background(), "   ", 10)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestIndexIsNoopWhenDisabled(t *testing.T) {
	svc := newService(t)
	assert.NoError(t, svc.Index(context.Background(), []models.SituationTree{{}}))
	assert.NoError(t, svc.Remove(context.Background(), []string{"s1"}))
	svc.Close()
}

func TestToDocument(t *testing.T) {
	tree := models.SituationTree{
		Situation: models.Situation{Base: models.Base{ID: "s"}, Title: "T", Order: 3},
		Before: []models.BeforeTree{
			{BeforeItem: models.BeforeItem{Text: "b1"}, After: []models.AfterItem{{Text: "a1"}, {Text: "a2"}}},
			{BeforeItem: models.BeforeItem{Text: "b2"}, After: []models.AfterItem{}},
		},
	}
	want := document{ID: "s", Title: "T", Order: 3, Before: []string{"b1", "b2"}, After: []string{"a1", "a2"}}
	if diff := cmp.Diff(want, toDocument(tree)); diff != "" {
		t.Errorf("toDocument mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstMatch(t *testing.T) {
	assert.Equal(t, "Second Line", firstMatch("second", []string{"first"}, []string{"Second Line"}))
	assert.Equal(t, "", firstMatch("", []string{"x"}))
}
