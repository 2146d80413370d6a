package models

// Situation is the root of the reference taxonomy used to seed card content.
type Situation struct {
	Base  `bson:",inline"`
	Title string `json:"title" bson:"title"`
	Order int64  `json:"order" bson:"order"`
}

func (Situation) CollectionName() string { return CollectionSituations }

// BeforeItem is a "before" reflection under a situation.
type BeforeItem struct {
	Base        `bson:",inline"`
	SituationID string `json:"situationId" bson:"situationId"`
	Text        string `json:"text"        bson:"text"`
	Order       int64  `json:"order"       bson:"order"`
}

func (BeforeItem) CollectionName() string { return CollectionBeforeItems }

// AfterItem is an "after" reflection under a before-item.
type AfterItem struct {
	Base         `bson:",inline"`
	SituationID  string `json:"situationId"  bson:"situationId"`
	BeforeItemID string `json:"beforeItemId" bson:"beforeItemId"`
	Text         string `json:"text"         bson:"text"`
	Order        int64  `json:"order"        bson:"order"`
}

func (AfterItem) CollectionName() string { return CollectionAfterItems }

// SituationTree is a situation with its nested items, for display and seeding.
type SituationTree struct {
	Situation
	Before []BeforeTree `json:"before"`
}

// BeforeTree is a before-item with its after-items.
type BeforeTree struct {
	BeforeItem
	After []AfterItem `json:"after"`
}
