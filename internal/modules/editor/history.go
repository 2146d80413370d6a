package editor

import "github.com/mx-space/diary/internal/models"

const (
	DefaultHistoryLimit     = 10
	DefaultTextHistoryLimit = 100
)

// snapshot is the whole card list plus the focused index.
type snapshot struct {
	cards   []models.Card
	current int
}

func takeSnapshot(cards []models.Card, current int) snapshot {
	return snapshot{cards: models.CloneCards(cards), current: current}
}

// stack is a bounded LIFO; pushing past the limit drops the oldest entry.
type stack struct {
	items []snapshot
	limit int
}

func (s *stack) push(snap snapshot) {
	s.items = append(s.items, snap)
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = append(s.items[:0:0], s.items[len(s.items)-s.limit:]...)
	}
}

func (s *stack) pop() (snapshot, bool) {
	if len(s.items) == 0 {
		return snapshot{}, false
	}
	last := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return last, true
}

func (s *stack) clear() { s.items = nil }

func (s *stack) len() int { return len(s.items) }

func (s *stack) empty() bool { return len(s.items) == 0 }

// History is a linear undo/redo pair. Recording a new state clears redo.
type History struct {
	undo stack
	redo stack
}

func NewHistory(limit int) *History {
	return &History{undo: stack{limit: limit}, redo: stack{limit: limit}}
}

// Record saves the state before a change.
func (h *History) Record(snap snapshot) {
	h.undo.push(snap)
	h.redo.clear()
}

// Undo swaps present for the last recorded state.
func (h *History) Undo(present snapshot) (snapshot, bool) {
	prev, ok := h.undo.pop()
	if !ok {
		return snapshot{}, false
	}
	h.redo.push(present)
	return prev, true
}

// Redo reverses the last Undo.
func (h *History) Redo(present snapshot) (snapshot, bool) {
	next, ok := h.redo.pop()
	if !ok {
		return snapshot{}, false
	}
	h.undo.push(present)
	return next, true
}

func (h *History) CanUndo() bool { return !h.undo.empty() }
func (h *History) CanRedo() bool { return !h.redo.empty() }

func (h *History) Clear() {
	h.undo.clear()
	h.redo.clear()
}
