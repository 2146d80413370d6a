package situation

import (
	"strings"
	"unicode/utf8"

	"github.com/mx-space/diary/internal/pkg/apperr"
)

const (
	MaxTitleLength = 200
	MaxTextLength  = 2000
	MaxImportSize  = 1 << 20
)

type TitleDTO struct {
	Title string `json:"title"`
}

type TextDTO struct {
	Text string `json:"text"`
}

type ImportDTO struct {
	Text string `json:"text"`
}

// Patch is a partial update of a situation or one of its items. Title applies
// to situations, Text to items.
type Patch struct {
	Title *string `json:"title"`
	Text  *string `json:"text"`
	Order *int64  `json:"order"`
}

// ImportResult counts the documents created by Import.
type ImportResult struct {
	Situations int `json:"situations"`
	Before     int `json:"before"`
	After      int `json:"after"`
}

func validateTitle(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return apperr.Validation("title is required")
	}
	if n := utf8.RuneCountInString(v); n > MaxTitleLength {
		return apperr.Validation("title is too long (%d > %d characters)", n, MaxTitleLength)
	}
	return nil
}

func validateText(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return apperr.Validation("text is required")
	}
	if n := utf8.RuneCountInString(v); n > MaxTextLength {
		return apperr.Validation("text is too long (%d > %d characters)", n, MaxTextLength)
	}
	return nil
}
