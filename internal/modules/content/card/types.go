package card

import (
	"unicode/utf8"

	"github.com/mx-space/diary/internal/pkg/apperr"
)

const (
	MaxTopicLength = 200
	MaxBodyLength  = 50000

	DefaultTopic = "New Topic"
	copySuffix   = " (Copy)"
)

// Patch is a partial card update; nil fields are left untouched.
type Patch struct {
	Topic    *string  `json:"topic"`
	BodyText *string  `json:"bodyText"`
	Order    *float64 `json:"order"`
}

func (p Patch) Empty() bool {
	return p.Topic == nil && p.BodyText == nil && p.Order == nil
}

type CreateCardDTO struct {
	Topic    string `json:"topic"`
	BodyText string `json:"bodyText"`
	// AfterIndex places the card after the card at this index; nil appends.
	AfterIndex *int `json:"afterIndex"`
}

type ReorderDTO struct {
	CardID      string `json:"cardId"      binding:"required"`
	TargetIndex int    `json:"targetIndex"`
}

type FromSituationDTO struct {
	SituationID string `json:"situationId" binding:"required"`
}

func validateTopic(topic string) error {
	if n := utf8.RuneCountInString(topic); n > MaxTopicLength {
		return apperr.Validation("topic is too long (%d > %d characters)", n, MaxTopicLength)
	}
	return nil
}

func validateBody(body string) error {
	if n := utf8.RuneCountInString(body); n > MaxBodyLength {
		return apperr.Validation("body is too long (%d > %d characters)", n, MaxBodyLength)
	}
	return nil
}

// ValidatePatch checks field lengths without touching the store.
func ValidatePatch(p Patch) error {
	if p.Topic != nil {
		if err := validateTopic(*p.Topic); err != nil {
			return err
		}
	}
	if p.BodyText != nil {
		if err := validateBody(*p.BodyText); err != nil {
			return err
		}
	}
	return nil
}
