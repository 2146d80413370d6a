package card

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/store"
)

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close(context.Background()) })
	return NewService(mem, nil), mem
}

func orders(cards []models.Card) []float64 {
	out := make([]float64, len(cards))
	for i, c := range cards {
		out[i] = c.Order
	}
	return out
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Create(ctx, "d1", "second", "", 2)
	require.NoError(t, err)
	id, err := svc.Create(ctx, "d1", "first", "<p>hi</p><script>x</script>", 1)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "d2", "other diary", "", 0)
	require.NoError(t, err)

	cards, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, id, cards[0].ID)
	assert.Equal(t, "<p>hi</p>", cards[0].BodyText, "bodies are sanitised")
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), "d1", strings.Repeat("x", MaxTopicLength+1), "", 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(context.Background(), "", "t", "", 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateStoreFailureIsWrapped(t *testing.T) {
	svc, mem := newService(t)
	mem.SetFault(func(op store.Op, _ string, _ bson.M) error {
		if op == store.OpInsert {
			return errors.New("quota exceeded")
		}
		return nil
	})

	_, err := svc.Create(context.Background(), "d1", "t", "", 0)
	require.Error(t, err)
	assert.Equal(t, "failed to create card", apperr.PublicMessage(err))
}

func TestDuplicatePlacesCopyBetweenNeighbours(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	first, err := svc.Create(ctx, "d1", "Fear", "<p>body</p>", 5)
	require.NoError(t, err)
	last, err := svc.Create(ctx, "d1", "Hope", "", 7)
	require.NoError(t, err)

	dup, err := svc.Duplicate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 6.0, dup.Order)
	assert.Equal(t, "Fear (Copy)", dup.Topic)
	assert.Equal(t, "<p>body</p>", dup.BodyText)

	dup, err = svc.Duplicate(ctx, last)
	require.NoError(t, err)
	assert.Equal(t, 7.5, dup.Order)

	_, err = svc.Duplicate(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateMergesAndIgnoresMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	id, err := svc.Create(ctx, "d1", "old", "<p>keep</p>", 1)
	require.NoError(t, err)
	before, err := svc.Get(ctx, id)
	require.NoError(t, err)

	topic := "new"
	require.NoError(t, svc.Update(ctx, id, Patch{Topic: &topic}))
	after, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", after.Topic)
	assert.Equal(t, "<p>keep</p>", after.BodyText)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

	assert.NoError(t, svc.Update(ctx, "missing", Patch{Topic: &topic}), "missing cards are a silent no-op")
	assert.NoError(t, svc.Delete(ctx, "missing"))
}

func TestReorderPersistsSequentialOrders(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a, _ := svc.Create(ctx, "d1", "A", "", 0)
	b, _ := svc.Create(ctx, "d1", "B", "", 0.5)
	c, _ := svc.Create(ctx, "d1", "C", "", 0.75)

	_, err := svc.Reorder(ctx, "d1", c, 0)
	require.NoError(t, err)

	cards, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, []string{c, a, b}, []string{cards[0].ID, cards[1].ID, cards[2].ID})
	assert.Equal(t, []float64{1, 2, 3}, orders(cards))

	_, err = svc.Reorder(ctx, "d1", "missing", 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestReorderPartialFailureReportsError(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)
	a, _ := svc.Create(ctx, "d1", "A", "", 1)
	_, _ = svc.Create(ctx, "d1", "B", "", 2)

	mem.SetFault(func(op store.Op, _ string, filter bson.M) error {
		if op == store.OpUpdate && filter["id"] == a {
			return errors.New("write conflict")
		}
		return nil
	})
	_, err := svc.Reorder(ctx, "d1", a, 1)
	require.Error(t, err)
	assert.Equal(t, "failed to reorder cards", apperr.PublicMessage(err))
}

func TestInsertCompactsOnUnderflow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	lo, _ := svc.Create(ctx, "d1", "lo", "", 1)
	_, _ = svc.Create(ctx, "d1", "hi", "", math.Nextafter(1, 2))

	cards, err := svc.List(ctx, "d1")
	require.NoError(t, err)

	c, compacted, err := svc.Insert(ctx, "d1", cards, 0, "mid", "")
	require.NoError(t, err)
	require.Len(t, compacted, 2)
	assert.Equal(t, 1.5, c.Order)

	cards, err = svc.List(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1.5, 2}, orders(cards))
	assert.Equal(t, lo, cards[0].ID)
	assert.Equal(t, "mid", cards[1].Topic)
}

func TestDeleteByDiary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "d1", "t", "", float64(i))
		require.NoError(t, err)
	}
	n, err := svc.DeleteByDiary(ctx, "d1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	cards, err := svc.List(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, cards)
}

type fakeSeeder struct{}

func (fakeSeeder) Seed(context.Context, string) (string, string, error) {
	return "At work", "<ul><li>tense</li></ul>", nil
}

func TestAppendFromSituation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AppendFromSituation(ctx, "d1", "s1")
	require.Error(t, err, "no seeder configured")

	svc.SetSeeder(fakeSeeder{})
	_, _ = svc.Create(ctx, "d1", "t", "", 4)
	c, err := svc.AppendFromSituation(ctx, "d1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.Order)
	assert.Equal(t, "At work", c.Topic)
}
