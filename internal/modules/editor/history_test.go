package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mx-space/diary/internal/models"
)

func snap(current int, ids ...string) snapshot {
	cards := make([]models.Card, len(ids))
	for i, id := range ids {
		cards[i] = models.Card{Base: models.Base{ID: id}, Order: float64(i + 1)}
	}
	return takeSnapshot(cards, current)
}

func ids(s snapshot) []string {
	out := make([]string, len(s.cards))
	for i, c := range s.cards {
		out[i] = c.ID
	}
	return out
}

func TestHistoryUndoRedo(t *testing.T) {
	h := NewHistory(10)
	assert.False(t, h.CanUndo())

	h.Record(snap(0, "a"))
	present := snap(1, "a", "b")

	prev, ok := h.Undo(present)
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, ids(prev))
	assert.True(t, h.CanRedo())

	next, ok := h.Redo(prev)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ids(next))
	assert.Equal(t, 1, next.current)
	assert.False(t, h.CanRedo())
}

func TestHistoryRecordClearsRedo(t *testing.T) {
	h := NewHistory(10)
	h.Record(snap(0, "a"))
	_, _ = h.Undo(snap(0, "a", "b"))
	assert.True(t, h.CanRedo())

	h.Record(snap(0, "a"))
	assert.False(t, h.CanRedo())
}

func TestHistoryDropsOldest(t *testing.T) {
	h := NewHistory(2)
	h.Record(snap(0, "1"))
	h.Record(snap(0, "2"))
	h.Record(snap(0, "3"))
	assert.Equal(t, 2, h.undo.len())

	s, _ := h.Undo(snap(0))
	assert.Equal(t, []string{"3"}, ids(s))
	s, _ = h.Undo(s)
	assert.Equal(t, []string{"2"}, ids(s))
	_, ok := h.Undo(s)
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	cards := []models.Card{{Base: models.Base{ID: "a"}, Topic: "before"}}
	s := takeSnapshot(cards, 0)
	cards[0].Topic = "after"
	assert.Equal(t, "before", s.cards[0].Topic)
}
