package models

// Setting keys stored in the settings collection.
const (
	SettingAdminPasswordHash     = "adminPasswordHash"
	SettingUniversalPasswordHash = "universalPasswordHash"
)

// Setting is a key/value document; the key is stored as the application id.
type Setting struct {
	Base  `bson:",inline"`
	Value string `json:"value" bson:"value"`
}

func (Setting) CollectionName() string { return CollectionSettings }
