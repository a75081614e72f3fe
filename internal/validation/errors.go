package validation

import (
	"net/http"

	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
)

// Rule violations surfaced to callers. Each carries a stable code so clients can react
// without parsing messages.
var (
	ErrCommentRequired = apperrors.New(
		"validation.comment_required",
		"a comment is required to reject an action",
		http.StatusUnprocessableEntity,
	)

	ErrCommentEmpty = apperrors.New(
		"validation.comment_empty",
		"a comment is required",
		http.StatusUnprocessableEntity,
	)

	ErrNotValidator = apperrors.New(
		"validation.not_validator",
		"only administrators and validators can validate actions",
		http.StatusForbidden,
	)

	ErrAlreadyValidated = apperrors.New(
		"validation.already_validated",
		"this action has already been validated",
		http.StatusConflict,
	)

	ErrInvalidOutcome = apperrors.New(
		"validation.invalid_outcome",
		"outcome must be validated or rejected",
		http.StatusBadRequest,
	)

	ErrNotAuthor = apperrors.New(
		"action.not_author",
		"only the author can edit this action",
		http.StatusForbidden,
	)

	ErrNotEditable = apperrors.New(
		"action.not_editable",
		"this action can no longer be edited",
		http.StatusConflict,
	)
)
