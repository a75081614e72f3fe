package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/shiftlog/internal/auditctx"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/validation"
	apperrors "github.com/charlesng35/shiftlog/pkg/errors"
	"github.com/charlesng35/shiftlog/pkg/logger"
)

func TestLedgerEmptyLedgerIsPending(t *testing.T) {
	env := newWorkflowEnv(t)
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	action := env.mustAction(t, alice, "pump 3 vibration")

	status, err := env.ledger.CurrentStatus(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, validation.StatusPending, status)

	_, err = env.ledger.CurrentStatus(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLedgerLatestEntryWins(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "valve replaced")

	_, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusRejected, "missing cause")
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)

	status, err := env.ledger.CurrentStatus(ctx, action.ID)
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidated, status)

	history, err := env.ledger.History(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, string(validation.StatusRejected), history[0].Outcome)
	require.Equal(t, string(validation.StatusValidated), history[1].Outcome)
	require.NotNil(t, history[0].Validator)
	require.Equal(t, "bob", history[0].Validator.Username)
}

func TestLedgerSameTimestampOrderedBySequence(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "breaker tripped")

	// The clock never advances, so every entry shares one timestamp.
	_, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	_, err = env.ledger.SubmitComment(ctx, action.ID, bob.ID, "noted")
	require.NoError(t, err)
	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusRejected, "on second look, no")
	require.NoError(t, err)

	history, err := env.ledger.History(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, entry := range history {
		require.EqualValues(t, i+1, entry.Sequence)
		require.True(t, entry.CreatedAt.Equal(history[0].CreatedAt))
	}

	status, err := env.ledger.CurrentStatus(ctx, action.ID)
	require.NoError(t, err)
	require.Equal(t, validation.StatusRejected, status)
	require.Equal(t, status, validation.Current(validation.FromModels(history)))
}

func TestLedgerTimestampsNeverGoBackwards(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "fan noise")

	_, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, "first")
	require.NoError(t, err)
	env.clock.Advance(-time.Hour)
	result, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)

	history, err := env.ledger.History(ctx, action.ID)
	require.NoError(t, err)
	require.Equal(t, result.Entry.ID, history[len(history)-1].ID)
	require.False(t, history[1].CreatedAt.Before(history[0].CreatedAt))
}

func TestLedgerRejectWithBlankCommentWritesNothing(t *testing.T) {
	env := newWorkflowEnv(t)
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	carol := env.mustUser(t, "carol", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "door sensor")

	for _, comment := range []string{"", "   "} {
		_, err := env.ledger.SubmitValidation(context.Background(), action.ID, carol.ID, validation.StatusRejected, comment)
		require.ErrorIs(t, err, validation.ErrCommentRequired)
		require.Equal(t, "a comment is required to reject an action", apperrors.FromError(err).Message)
	}
	require.Zero(t, env.countLedger(t, action.ID))
}

func TestLedgerNonValidatorWritesNothing(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	dave := env.mustUser(t, "dave", models.RoleUser, true)
	action := env.mustAction(t, alice, "lights out")

	_, err := env.ledger.SubmitValidation(ctx, action.ID, dave.ID, validation.StatusValidated, "")
	require.ErrorIs(t, err, validation.ErrNotValidator)
	_, err = env.ledger.SubmitValidation(ctx, action.ID, dave.ID, validation.StatusRejected, "no")
	require.ErrorIs(t, err, validation.ErrNotValidator)
	_, err = env.ledger.SubmitComment(ctx, action.ID, dave.ID, "hmm")
	require.ErrorIs(t, err, validation.ErrNotValidator)
	_, err = env.ledger.SubmitComment(ctx, action.ID, "ghost", "hmm")
	require.ErrorIs(t, err, validation.ErrNotValidator)

	require.Zero(t, env.countLedger(t, action.ID))
}

func TestLedgerValidatorRoleCanValidate(t *testing.T) {
	env := newWorkflowEnv(t)
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	vera := env.mustUser(t, "vera", models.RoleValidator, true)
	action := env.mustAction(t, alice, "coolant top-up")

	result, err := env.ledger.SubmitValidation(context.Background(), action.ID, vera.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidated, result.Status)
}

func TestLedgerSelfValidationIsWarnedNotBlocked(t *testing.T) {
	env := newWorkflowEnv(t)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, bob, "own action")

	result, err := env.ledger.SubmitValidation(context.Background(), action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	require.Equal(t, []string{validation.WarningSelfValidation}, result.Warnings)
	require.EqualValues(t, 1, env.countLedger(t, action.ID))
}

func TestLedgerRefusesRevalidation(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "network outage")

	_, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.ErrorIs(t, err, validation.ErrAlreadyValidated)
	require.EqualValues(t, 1, env.countLedger(t, action.ID))
}

func TestLedgerCommentKeepsStatus(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "generator test")

	_, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, " ")
	require.ErrorIs(t, err, validation.ErrCommentEmpty)

	result, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, "please attach the log")
	require.NoError(t, err)
	require.Equal(t, validation.StatusPending, result.Status)
	require.Equal(t, string(validation.KindComment), result.Entry.Kind)

	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	result, err = env.ledger.SubmitComment(ctx, action.ID, bob.ID, "thanks")
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidated, result.Status)

	status, err := env.ledger.CurrentStatus(ctx, action.ID)
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidated, status)
}

func TestLedgerConcurrentSubmissionsStayOrdered(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "busy action")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, fmt.Sprintf("comment %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := env.ledger.History(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, history, writers)
	for i, entry := range history {
		require.EqualValues(t, i+1, entry.Sequence)
	}
}

func TestLedgerHistoryAccess(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	dave := env.mustUser(t, "dave", models.RoleUser, true)
	action := env.mustAction(t, alice, "shared history")

	_, err := env.ledger.SubmitComment(ctx, action.ID, bob.ID, "seen")
	require.NoError(t, err)

	for _, viewer := range []*models.User{alice, bob} {
		history, err := env.ledger.HistoryFor(ctx, action.ID, viewer)
		require.NoError(t, err)
		require.Len(t, history, 1)
	}

	_, err = env.ledger.HistoryFor(ctx, action.ID, dave)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = env.ledger.HistoryFor(ctx, "missing", bob)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLedgerCanEdit(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "editable")

	ok, err := env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.ledger.CanEdit(ctx, action.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusRejected, "fix the cause")
	require.NoError(t, err)
	ok, err = env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok, "rejected actions stay editable")

	env.clock.Advance(time.Minute)
	_, err = env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	ok, err = env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, ok, "validated actions are frozen even while the shift is open")

	_, err = env.ledger.CanEdit(ctx, "missing", alice.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLedgerCanEditRechecksShift(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	action := env.mustAction(t, alice, "shift bound")

	ok, err := env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	env.clock.Advance(25 * time.Hour)
	ok, err = env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, ok, "expired shift blocks edits")

	env.clock.Advance(-25 * time.Hour)
	_, err = env.shifts.Close(ctx, alice.ID)
	require.NoError(t, err)
	ok, err = env.ledger.CanEdit(ctx, action.ID, alice.ID)
	require.NoError(t, err)
	require.False(t, ok, "closed shift blocks edits")
}

func TestLedgerStatusesFor(t *testing.T) {
	env := newWorkflowEnv(t)
	ctx := context.Background()
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	first := env.mustAction(t, alice, "first")
	second := env.mustAction(t, alice, "second")
	third := env.mustAction(t, alice, "third")

	_, err := env.ledger.SubmitValidation(ctx, first.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)
	_, err = env.ledger.SubmitValidation(ctx, second.ID, bob.ID, validation.StatusRejected, "why")
	require.NoError(t, err)
	_, err = env.ledger.SubmitComment(ctx, second.ID, bob.ID, "still waiting")
	require.NoError(t, err)

	statuses, err := env.ledger.StatusesFor(ctx, []string{first.ID, second.ID, third.ID})
	require.NoError(t, err)
	require.Equal(t, validation.StatusValidated, statuses[first.ID])
	require.Equal(t, validation.StatusRejected, statuses[second.ID])
	require.Equal(t, validation.StatusPending, statuses[third.ID])
}

func TestLedgerLogsActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	env := newWorkflowEnv(t)
	alice := env.mustUser(t, "alice", models.RoleUser, true)
	bob := env.mustUser(t, "bob", models.RoleAdmin, true)
	action := env.mustAction(t, alice, "valve 7 replaced")

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{UserID: bob.ID, Username: "bob", IPAddress: "10.1.2.3"})
	_, err := env.ledger.SubmitValidation(ctx, action.ID, bob.ID, validation.StatusValidated, "")
	require.NoError(t, err)

	entries := logs.FilterMessage("ledger entry recorded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, action.ID, fields["action_id"])
	require.Equal(t, "10.1.2.3", fields["actor_ip"])
	require.Equal(t, "bob", fields["actor"])
}
