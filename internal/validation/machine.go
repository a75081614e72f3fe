package validation

import (
	"strings"
	"time"

	"github.com/charlesng35/shiftlog/internal/models"
)

// WarningSelfValidation annotates a successful submission made on one's own action.
const WarningSelfValidation = "self_validation"

// CanValidate reports whether a role holds the validating capability.
func CanValidate(role string) bool {
	return role == models.RoleAdmin || role == models.RoleValidator
}

// Submission describes a request to append a ledger entry.
type Submission struct {
	ValidatorID   string
	ValidatorRole string
	AuthorID      string
	Outcome       Status
	Comment       string
	// Current is the action's derived status before the submission.
	Current Status
}

// Decision is the entry the ledger should append for an accepted submission.
type Decision struct {
	Status   Status
	Kind     Kind
	Comment  string
	Warnings []string
}

// SelfValidation reports whether the decision was flagged as made on one's own action.
func (d Decision) SelfValidation() bool {
	for _, w := range d.Warnings {
		if w == WarningSelfValidation {
			return true
		}
	}
	return false
}

// Decide applies the transition rules to a validate or reject submission.
// Re-validating an already validated action is refused; re-rejecting and validating after
// a rejection are accepted as new entries.
func Decide(sub Submission) (Decision, error) {
	if !CanValidate(sub.ValidatorRole) {
		return Decision{}, ErrNotValidator
	}

	comment := strings.TrimSpace(sub.Comment)
	switch sub.Outcome {
	case StatusValidated:
		if sub.Current == StatusValidated {
			return Decision{}, ErrAlreadyValidated
		}
	case StatusRejected:
		if comment == "" {
			return Decision{}, ErrCommentRequired
		}
	default:
		return Decision{}, ErrInvalidOutcome
	}

	return Decision{
		Status:   sub.Outcome,
		Kind:     KindDecision,
		Comment:  comment,
		Warnings: warningsFor(sub),
	}, nil
}

// DecideComment applies the rules for a comment. The entry keeps the current status.
func DecideComment(sub Submission) (Decision, error) {
	if !CanValidate(sub.ValidatorRole) {
		return Decision{}, ErrNotValidator
	}

	comment := strings.TrimSpace(sub.Comment)
	if comment == "" {
		return Decision{}, ErrCommentEmpty
	}

	current := sub.Current
	if current == "" {
		current = StatusPending
	}

	return Decision{
		Status:   current,
		Kind:     KindComment,
		Comment:  comment,
		Warnings: warningsFor(sub),
	}, nil
}

func warningsFor(sub Submission) []string {
	if sub.ValidatorID != "" && sub.ValidatorID == sub.AuthorID {
		return []string{WarningSelfValidation}
	}
	return nil
}

// EditCheck gathers what the edit rule needs. Shift state must be read fresh.
type EditCheck struct {
	UserID   string
	AuthorID string
	Current  Status
	Shift    *models.ShiftSession
	Now      time.Time
}

// EditBlocker returns the reason an edit is refused, or nil when it is allowed.
func EditBlocker(check EditCheck) error {
	if check.UserID == "" || check.UserID != check.AuthorID {
		return ErrNotAuthor
	}
	if !check.Current.Editable() {
		return ErrNotEditable.WithMessage("this action has already been validated")
	}
	if !check.Shift.IsActive(check.Now) {
		return ErrNotEditable.WithMessage("the service session for this action is closed")
	}
	return nil
}

// CanEdit reports whether the user may edit the action.
func CanEdit(check EditCheck) bool {
	return EditBlocker(check) == nil
}

// NotificationType maps a ledger entry's outcome to the notification it produces for the
// author. A comment carries the outcome it preserved, so a comment on a validated action
// reads as a validation.
func NotificationType(status Status) string {
	switch status {
	case StatusValidated:
		return models.NotificationValidation
	case StatusRejected:
		return models.NotificationRejection
	default:
		return models.NotificationComment
	}
}

// FromModel converts a persisted ledger row.
func FromModel(v models.Validation) Entry {
	status, err := ParseStatus(v.Outcome)
	if err != nil {
		status = StatusPending
	}
	kind := Kind(v.Kind)
	if kind == "" {
		kind = KindDecision
	}
	return Entry{
		ID:          v.ID,
		ValidatorID: v.ValidatorID,
		Status:      status,
		Kind:        kind,
		Comment:     v.Comment,
		CreatedAt:   v.CreatedAt,
		Sequence:    v.Sequence,
	}
}

// FromModels converts persisted ledger rows in order.
func FromModels(rows []models.Validation) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, FromModel(row))
	}
	return entries
}
