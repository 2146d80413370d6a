package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type testDoc struct {
	ID      string    `bson:"id"`
	Group   string    `bson:"group"`
	Order   float64   `bson:"order"`
	Count   int64     `bson:"count"`
	Created time.Time `bson:"created"`
}

func seed(t *testing.T, m *Memory) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []any{
		testDoc{ID: "a", Group: "g1", Order: 2, Created: base},
		testDoc{ID: "b", Group: "g1", Order: 0.5, Created: base.Add(time.Minute)},
		testDoc{ID: "c", Group: "g2", Order: 1, Created: base.Add(2 * time.Minute)},
		testDoc{ID: "d", Group: "g1", Order: 2, Created: base.Add(3 * time.Minute)},
	}
	require.NoError(t, m.InsertMany(context.Background(), "docs", docs))
}

func TestMemoryFindFiltersAndSorts(t *testing.T) {
	m := NewMemory()
	seed(t, m)

	var got []testDoc
	err := m.Find(context.Background(), "docs", Query{
		Filter: bson.M{"group": "g1"},
		Sort:   []SortField{Asc("order"), Asc("created")},
	}, &got)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"b", "a", "d"}, ids, "ties on order fall back to the second sort key")
}

func TestMemoryFindOneMissing(t *testing.T) {
	m := NewMemory()
	seed(t, m)

	var d testDoc
	found, err := m.FindOne(context.Background(), "docs", ByID("zzz"), &d)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = m.FindOne(context.Background(), "docs", ByID("c"), &d)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "g2", d.Group)
	assert.Equal(t, 1.0, d.Order)
}

func TestMemoryUpdateSetAndInc(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m)

	n, err := m.Update(ctx, "docs", ByID("a"), Update{Set: bson.M{"order": 1.25}, Inc: bson.M{"count": int64(1)}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = m.Update(ctx, "docs", ByID("a"), Update{Inc: bson.M{"count": int64(2)}})
	require.NoError(t, err)

	var d testDoc
	_, err = m.FindOne(ctx, "docs", ByID("a"), &d)
	require.NoError(t, err)
	assert.Equal(t, 1.25, d.Order)
	assert.EqualValues(t, 3, d.Count)

	n, err = m.Update(ctx, "docs", ByID("missing"), Update{Set: bson.M{"order": 9.0}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m)

	n, err := m.Delete(ctx, "docs", bson.M{"group": "g1"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	left, err := m.Count(ctx, "docs", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, left)
}

func TestMemoryWatchDeliversChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	ch, err := m.Watch(ctx, "docs")
	require.NoError(t, err)

	require.NoError(t, m.Insert(ctx, "docs", testDoc{ID: "x", Group: "g"}))
	_, err = m.Update(ctx, "docs", ByID("x"), Update{Set: bson.M{"order": 3.0}})
	require.NoError(t, err)
	_, err = m.Delete(ctx, "docs", ByID("x"))
	require.NoError(t, err)

	var ops []Op
	for i := 0; i < 3; i++ {
		select {
		case c := <-ch:
			ops = append(ops, c.Op)
			group, ok := c.StringField("group")
			assert.True(t, ok)
			assert.Equal(t, "g", group)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for change %d", i)
		}
	}
	assert.Equal(t, []Op{OpInsert, OpUpdate, OpDelete}, ops)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "watch channel closes after cancel")
}

func TestMemoryFaultAbortsWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m)
	boom := errors.New("boom")
	m.SetFault(func(op Op, collection string, _ bson.M) error {
		if op == OpDelete {
			return boom
		}
		return nil
	})

	_, err := m.Delete(ctx, "docs", nil)
	require.ErrorIs(t, err, boom)

	n, err := m.Count(ctx, "docs", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}
