package models

// Gender values accepted on a diary.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Diary is a per-client document containing ordered cards.
type Diary struct {
	Base             `bson:",inline"`
	ClientID         string `json:"clientId"         bson:"clientId"`
	Name             string `json:"name"             bson:"name"`
	Gender           string `json:"gender"           bson:"gender"`
	URL              string `json:"url"              bson:"url"`
	CardReadingCount int64  `json:"cardReadingCount" bson:"cardReadingCount"`
	PasswordHash     string `json:"-"                bson:"passwordHash,omitempty"` // bcrypt, never exposed
}

func (Diary) CollectionName() string { return CollectionDiaries }

// Locked reports whether the diary requires a password to view.
func (d *Diary) Locked() bool { return d.PasswordHash != "" }
