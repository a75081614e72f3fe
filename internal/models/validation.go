package models

import (
	"errors"

	"gorm.io/gorm"
)

// ErrLedgerImmutable is returned when code attempts to rewrite or remove a ledger entry.
var ErrLedgerImmutable = errors.New("validation ledger entries are immutable")

// Validation is one append-only ledger entry recording a validate, reject or comment
// decision on an Action. Outcome is the approval status the action holds after the entry;
// comments carry the status they were made against. Sequence is assigned per action at
// insert time and breaks ties between entries sharing a timestamp.
type Validation struct {
	BaseModel

	ActionID    string  `gorm:"type:uuid;not null;uniqueIndex:idx_validation_action_seq,priority:1" json:"action_id"`
	Action      *Action `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	ValidatorID string  `gorm:"type:uuid;not null;index" json:"validator_id"`
	Validator   *User   `gorm:"constraint:OnDelete:CASCADE;" json:"validator,omitempty"`
	Outcome     string  `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Kind        string  `gorm:"type:varchar(20);not null;default:'decision'" json:"kind"`
	Comment     string  `gorm:"type:text" json:"comment,omitempty"`
	Sequence    int64   `gorm:"not null;uniqueIndex:idx_validation_action_seq,priority:2" json:"sequence"`
}

// BeforeUpdate rejects any in-place modification of a ledger entry.
func (v *Validation) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

// BeforeDelete rejects direct deletion; entries only disappear with their action.
func (v *Validation) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}
