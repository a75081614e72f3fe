package models

import "gorm.io/datatypes"

// Action categories.
const (
	CategoryFault       = "fault"
	CategoryMaintenance = "maintenance"
	CategoryIncident    = "incident"
	CategoryFollowUp    = "follow_up"
	CategoryOther       = "other"
)

// Operational states, independent from the validation ledger.
const (
	ActionResolved   = "resolved"
	ActionPending    = "pending"
	ActionInProgress = "in_progress"
)

// Action is one logged incident or task recorded during a shift. Its approval state is
// never stored here; it is derived from the Validation ledger.
type Action struct {
	BaseModel

	AuthorID        string                      `gorm:"type:uuid;not null;index" json:"author_id"`
	Author          *User                       `gorm:"constraint:OnDelete:CASCADE;" json:"author,omitempty"`
	ShiftID         string                      `gorm:"type:uuid;not null;index" json:"shift_id"`
	Shift           *ShiftSession               `gorm:"constraint:OnDelete:CASCADE;" json:"shift,omitempty"`
	Category        string                      `gorm:"type:varchar(20);not null;default:'other'" json:"category"`
	Description     string                      `gorm:"type:text;not null" json:"description"`
	Cause           *string                     `gorm:"type:text" json:"cause,omitempty"`
	InvolvedPersons datatypes.JSONSlice[string] `json:"involved_persons,omitempty"`
	Status          string                      `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	FollowUp        bool                        `gorm:"default:false" json:"follow_up"`
}
