// Package testutil provides a file-backed SQLite database for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"quest-battle-service/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a fresh migrated database under t.TempDir(). Write
// transactions begin IMMEDIATE so concurrent writers queue on the busy
// timeout instead of failing on lock upgrade.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "battles.db") +
		"?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Day is a fixed UTC reference date used by fixtures.
var Day = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

// BattleFixture inserts a battle between two users with the given status.
// The window is seven days ending at end.
func BattleFixture(t testing.TB, db *gorm.DB, challenger, challenged string, status models.BattleStatus, end time.Time) *models.Battle {
	t.Helper()
	b := &models.Battle{
		ChallengerID:     challenger,
		ChallengedID:     challenged,
		ChallengerGoalID: "goal-" + challenger,
		ChallengedGoalID: "goal-" + challenged,
		StartDate:        end.AddDate(0, 0, -models.DefaultBattleDays),
		EndDate:          end,
		DurationDays:     models.DefaultBattleDays,
		Status:           status,
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create battle: %v", err)
	}
	return b
}

// RecordFixture inserts one daily record.
func RecordFixture(t testing.TB, db *gorm.DB, battleID, userID string, day int, v models.VerificationStatus, xp int64) {
	t.Helper()
	r := &models.DailyRecord{
		BattleID:     battleID,
		UserID:       userID,
		Day:          day,
		Verification: v,
		XPAwarded:    xp,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create daily record: %v", err)
	}
}

// ApprovedDays spreads total XP over approved records starting at day 1.
func ApprovedDays(t testing.TB, db *gorm.DB, battleID, userID string, perDay ...int64) {
	t.Helper()
	for i, xp := range perDay {
		RecordFixture(t, db, battleID, userID, i+1, models.VerificationApproved, xp)
	}
}
