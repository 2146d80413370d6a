package models

// Card is one Before/After reflection unit within a diary.
// Order is a fractional sort key; cards of a diary are displayed by ascending order.
type Card struct {
	Base     `bson:",inline"`
	DiaryID  string  `json:"diaryId"  bson:"diaryId"`
	Topic    string  `json:"topic"    bson:"topic"`
	BodyText string  `json:"bodyText" bson:"bodyText"`
	Order    float64 `json:"order"    bson:"order"`
}

func (Card) CollectionName() string { return CollectionCards }

// CloneCards returns a deep copy of cards.
func CloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}
