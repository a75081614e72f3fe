package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/shiftlog/internal/models"
)

func TestAutoMigrateCreatesWorkflowTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []interface{}{
		&models.User{},
		&models.ShiftSession{},
		&models.Action{},
		&models.Validation{},
		&models.Notification{},
		&models.SystemSetting{},
	}

	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}
	require.True(t, migrator.HasIndex(&models.Validation{}, "idx_validation_action_seq"))
}

func TestDeletingActionCascadesLedgerAndNotifications(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	author := models.User{Username: "op", Password: "x", IsValidated: true}
	require.NoError(t, db.Create(&author).Error)
	now := time.Now().UTC()
	shift := models.ShiftSession{UserID: author.ID, OpenedAt: now, ClosesAt: now.Add(time.Hour), Status: models.ShiftOpen}
	require.NoError(t, db.Create(&shift).Error)
	action := models.Action{AuthorID: author.ID, ShiftID: shift.ID, Category: models.CategoryFault, Description: "pump", Status: models.ActionPending}
	require.NoError(t, db.Create(&action).Error)
	entry := models.Validation{ActionID: action.ID, ValidatorID: author.ID, Outcome: "validated", Sequence: 1}
	require.NoError(t, db.Create(&entry).Error)
	note := models.Notification{UserID: author.ID, Type: models.NotificationValidation, Message: "ok", ActionID: &action.ID, ValidationID: &entry.ID}
	require.NoError(t, db.Create(&note).Error)

	require.NoError(t, db.Delete(&models.Action{}, "id = ?", action.ID).Error)

	var ledger, notes int64
	require.NoError(t, db.Model(&models.Validation{}).Where("action_id = ?", action.ID).Count(&ledger).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("action_id = ?", action.ID).Count(&notes).Error)
	require.Zero(t, ledger)
	require.Zero(t, notes)
}

func TestLedgerEntriesRejectUpdates(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	author := models.User{Username: "op", Password: "x"}
	require.NoError(t, db.Create(&author).Error)
	now := time.Now().UTC()
	shift := models.ShiftSession{UserID: author.ID, OpenedAt: now, ClosesAt: now.Add(time.Hour), Status: models.ShiftOpen}
	require.NoError(t, db.Create(&shift).Error)
	action := models.Action{AuthorID: author.ID, ShiftID: shift.ID, Description: "leak"}
	require.NoError(t, db.Create(&action).Error)
	entry := models.Validation{ActionID: action.ID, ValidatorID: author.ID, Outcome: "comment", Comment: "first", Sequence: 1}
	require.NoError(t, db.Create(&entry).Error)

	err := db.Model(&entry).Update("comment", "rewritten").Error
	require.ErrorIs(t, err, models.ErrLedgerImmutable)
	require.ErrorIs(t, db.Delete(&entry).Error, models.ErrLedgerImmutable)

	duplicate := models.Validation{ActionID: action.ID, ValidatorID: author.ID, Outcome: "comment", Comment: "dup", Sequence: 1}
	require.Error(t, db.Create(&duplicate).Error)
}
