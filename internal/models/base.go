package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection names in the document store.
const (
	CollectionDiaries     = "diaries"
	CollectionCards       = "cards"
	CollectionSituations  = "situations"
	CollectionBeforeItems = "beforeItems"
	CollectionAfterItems  = "afterItems"
	CollectionSettings    = "settings"
)

// AllCollections lists every collection owned by the application, in restore order.
var AllCollections = []string{
	CollectionSettings,
	CollectionDiaries,
	CollectionCards,
	CollectionSituations,
	CollectionBeforeItems,
	CollectionAfterItems,
}

// Base is embedded by every stored document.
// ID is the application-level id; the storage key (_id) is never exposed.
type Base struct {
	ID        string    `json:"id"        bson:"id"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Stamp assigns an id when missing and refreshes timestamps.
func (b *Base) Stamp(now time.Time) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Now returns the timestamp used for stored documents (millisecond precision, UTC),
// matching what the document store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
