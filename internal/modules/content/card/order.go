package card

import (
	"sort"

	"github.com/mx-space/diary/internal/models"
)

// Between returns the midpoint of a and b. ok is false when no float64 lies
// strictly between them, i.e. the gap has been halved away by repeated
// insertions at the same spot and the diary needs compacting.
func Between(a, b float64) (float64, bool) {
	if !(a < b) {
		return 0, false
	}
	m := (a + b) / 2
	if !(a < m && m < b) {
		return 0, false
	}
	return m, true
}

// InsertionOrder computes the order of a card inserted right after cards[i].
// An empty list starts at 0; inserting after the last card uses cur+1 as the
// upper neighbour. i is clamped into range.
func InsertionOrder(cards []models.Card, i int) (float64, bool) {
	if len(cards) == 0 {
		return 0, true
	}
	i = clamp(i, 0, len(cards)-1)
	cur := cards[i].Order
	next := cur + 1
	if i+1 < len(cards) {
		next = cards[i+1].Order
	}
	return Between(cur, next)
}

// AppendOrder is the order of a card placed after every existing card.
func AppendOrder(cards []models.Card) float64 {
	if len(cards) == 0 {
		return 0
	}
	max := cards[0].Order
	for _, c := range cards[1:] {
		if c.Order > max {
			max = c.Order
		}
	}
	return max + 1
}

// DuplicateOrder places a copy of original between it and the first sibling
// with a greater order, or at original+1 when there is none.
func DuplicateOrder(siblings []models.Card, original models.Card) (float64, bool) {
	next := original.Order + 1
	for _, c := range siblings {
		if c.Order > original.Order {
			next = c.Order
			break
		}
	}
	return Between(original.Order, next)
}

// Move splices the card with id draggedID to targetIndex and renumbers every
// card to index+1. The input slice is not modified.
func Move(cards []models.Card, draggedID string, targetIndex int) ([]models.Card, bool) {
	from := indexOf(cards, draggedID)
	if from < 0 {
		return nil, false
	}
	out := make([]models.Card, 0, len(cards))
	out = append(out, cards[:from]...)
	out = append(out, cards[from+1:]...)

	targetIndex = clamp(targetIndex, 0, len(out))
	out = append(out, models.Card{})
	copy(out[targetIndex+1:], out[targetIndex:])
	out[targetIndex] = cards[from]
	Renumber(out)
	return out, true
}

// Renumber assigns order = index+1 in place.
func Renumber(cards []models.Card) {
	for i := range cards {
		cards[i].Order = float64(i + 1)
	}
}

// Sort orders cards by ascending order, then creation time, then id so ties
// are stable across stores.
func Sort(cards []models.Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func indexOf(cards []models.Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
