package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the derived approval state of an action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Kind distinguishes approval decisions from comments in the ledger.
type Kind string

const (
	KindDecision Kind = "decision"
	KindComment  Kind = "comment"
)

// ParseStatus normalises a stored or submitted outcome.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusValidated:
		return StatusValidated, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", ErrInvalidOutcome.WithMessage(fmt.Sprintf("unknown outcome %q", raw))
	}
}

// Entry is the state-machine view of one ledger row.
type Entry struct {
	ID          string
	ValidatorID string
	Status      Status
	Kind        Kind
	Comment     string
	CreatedAt   time.Time
	Sequence    int64
}

// Before reports whether a precedes b in ledger order. Entries sharing a timestamp are
// ordered by sequence, then by id so the order stays total even for malformed input.
func Before(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}

// Sort orders entries ascending in ledger order, in place.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Before(entries[i], entries[j])
	})
}

// Current returns the status of the latest entry, or pending for an empty ledger.
// The input does not need to be sorted.
func Current(entries []Entry) Status {
	if len(entries) == 0 {
		return StatusPending
	}
	latest := entries[0]
	for _, entry := range entries[1:] {
		if Before(latest, entry) {
			latest = entry
		}
	}
	if latest.Status == "" {
		return StatusPending
	}
	return latest.Status
}

// Editable reports whether an action in this status may still be changed by its author.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusRejected
}
