package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
)

func TestCurrentEmptyLedgerIsPending(t *testing.T) {
	require.Equal(t, StatusPending, Current(nil))
}

func TestCurrentUsesLatestTimestamp(t *testing.T) {
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "c", Status: StatusRejected, CreatedAt: base.Add(2 * time.Minute), Sequence: 3},
		{ID: "a", Status: StatusPending, CreatedAt: base, Sequence: 1},
		{ID: "b", Status: StatusValidated, CreatedAt: base.Add(time.Minute), Sequence: 2},
	}

	require.Equal(t, StatusRejected, Current(entries))
}

func TestCurrentBreaksTimestampTiesBySequence(t *testing.T) {
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "z", Status: StatusValidated, CreatedAt: at, Sequence: 2},
		{ID: "a", Status: StatusRejected, CreatedAt: at, Sequence: 1},
	}
	require.Equal(t, StatusValidated, Current(entries))

	// Reversing the slice must not change the answer.
	entries[0], entries[1] = entries[1], entries[0]
	require.Equal(t, StatusValidated, Current(entries))
}

func TestSortOrdersAscending(t *testing.T) {
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: "3", CreatedAt: at.Add(time.Second), Sequence: 3},
		{ID: "2", CreatedAt: at, Sequence: 2},
		{ID: "1", CreatedAt: at, Sequence: 1},
	}

	Sort(entries)

	require.Equal(t, []string{"1", "2", "3"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Validated ")
	require.NoError(t, err)
	require.Equal(t, StatusValidated, status)

	_, err = ParseStatus("approved")
	require.ErrorIs(t, err, ErrInvalidOutcome)

	appErr := apperrors.FromError(err)
	require.Equal(t, "validation.invalid_outcome", appErr.Code)
}

func TestEditableStatuses(t *testing.T) {
	require.True(t, StatusPending.Editable())
	require.True(t, StatusRejected.Editable())
	require.False(t, StatusValidated.Editable())
}
