package diary

import (
	"strings"
	"unicode/utf8"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

const (
	MaxClientIDLength = 64
	MaxNameLength     = 100
	minPasswordLength = 4
	maxPasswordLength = 72 // bcrypt input limit
)

type CreateDiaryDTO struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Password string `json:"password"`
}

type UpdateDiaryDTO struct {
	ClientID *string `json:"clientId"`
	Name     *string `json:"name"`
	Gender   *string `json:"gender"`
}

type PasswordDTO struct {
	Password string `json:"password"`
}

// Metadata describes a diary page for link previews.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	OGType      string `json:"ogType"`
	Locked      bool   `json:"locked"`
	CardCount   int    `json:"cardCount"`
}

// diaryResponse adds the lock flag the stored document keeps private.
type diaryResponse struct {
	models.Diary
	Locked bool `json:"locked"`
}

func toResponse(d models.Diary) diaryResponse {
	return diaryResponse{Diary: d, Locked: d.Locked()}
}

func (dto *CreateDiaryDTO) normalize() {
	dto.ClientID = strings.TrimSpace(dto.ClientID)
	dto.Name = strings.TrimSpace(dto.Name)
	dto.Gender = strings.ToLower(strings.TrimSpace(dto.Gender))
}

func (dto CreateDiaryDTO) validate() error {
	if err := validateClientID(dto.ClientID); err != nil {
		return err
	}
	if err := validateName(dto.Name); err != nil {
		return err
	}
	if err := validateGender(dto.Gender); err != nil {
		return err
	}
	if dto.Password != "" {
		return validatePassword(dto.Password)
	}
	return nil
}

func (dto UpdateDiaryDTO) validate() error {
	if dto.ClientID != nil {
		if err := validateClientID(strings.TrimSpace(*dto.ClientID)); err != nil {
			return err
		}
	}
	if dto.Name != nil {
		if err := validateName(strings.TrimSpace(*dto.Name)); err != nil {
			return err
		}
	}
	if dto.Gender != nil {
		return validateGender(strings.ToLower(strings.TrimSpace(*dto.Gender)))
	}
	return nil
}

func validateClientID(v string) error {
	if v == "" {
		return apperr.Validation("clientId is required")
	}
	if n := utf8.RuneCountInString(v); n > MaxClientIDLength {
		return apperr.Validation("clientId is too long (%d > %d characters)", n, MaxClientIDLength)
	}
	return nil
}

func validateName(v string) error {
	if v == "" {
		return apperr.Validation("name is required")
	}
	if n := utf8.RuneCountInString(v); n > MaxNameLength {
		return apperr.Validation("name is too long (%d > %d characters)", n, MaxNameLength)
	}
	return nil
}

func validateGender(v string) error {
	switch v {
	case "", models.GenderMale, models.GenderFemale, models.GenderOther:
		return nil
	}
	return apperr.Validation("gender must be one of male, female, other")
}

func validatePassword(v string) error {
	if len(v) < minPasswordLength || len(v) > maxPasswordLength {
		return apperr.Validation("password must be %d-%d characters", minPasswordLength, maxPasswordLength)
	}
	return nil
}
