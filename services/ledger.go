package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"quest-battle-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// XPPerLevel: every 1000 XP is one level.
const XPPerLevel = 1000

// LevelForScore is the only level formula: floor(score/1000) + 1.
func LevelForScore(score int64) int {
	if score < 0 {
		score = 0
	}
	return int(score/XPPerLevel) + 1
}

// XPToNextLevel returns how much XP is missing to reach the next level.
func XPToNextLevel(score int64) int64 {
	if score < 0 {
		score = 0
	}
	return int64(LevelForScore(score))*XPPerLevel - score
}

// Credit is one XP grant. SourceType+SourceID identify the granting event
// (a battle, a quest, an operator action) and are unique per user.
type Credit struct {
	UserID     string
	Amount     int64
	Reason     models.ActivityReason
	SourceType string
	SourceID   string
}

func (c Credit) validate() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("%w: user id required", ErrInvalidCredit)
	case c.Amount < 0:
		return fmt.Errorf("%w: negative amount %d", ErrInvalidCredit, c.Amount)
	case c.Reason == "":
		return fmt.Errorf("%w: reason required", ErrInvalidCredit)
	case c.SourceType == "" || c.SourceID == "":
		return fmt.Errorf("%w: source required", ErrInvalidCredit)
	}
	return nil
}

// XPLedger is the single write path for user scores. It has no transaction
// of its own: Apply composes into the caller's transaction so a credit is
// committed or rolled back together with whatever triggered it.
type XPLedger struct {
	now func() time.Time
}

func NewXPLedger() *XPLedger {
	return &XPLedger{now: time.Now}
}

// Apply adds c.Amount to the user's score as an additive delta, recomputes
// the level and appends one activity row. A zero amount is a no-op and
// returns (nil, nil). tx must be an open transaction.
func (l *XPLedger) Apply(tx *gorm.DB, c Credit) (*models.UserProgress, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Amount == 0 {
		return nil, nil
	}

	// Ensure the ledger head exists without racing other writers.
	seed := models.UserProgress{ExternalUserID: c.UserID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure progress for %s: %w", c.UserID, err)
	}

	res := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", c.UserID).
		Update("total_xp", gorm.Expr("total_xp + ?", c.Amount))
	if res.Error != nil {
		return nil, fmt.Errorf("credit %d XP to %s: %w", c.Amount, c.UserID, res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("credit %d XP to %s: %d progress rows updated", c.Amount, c.UserID, res.RowsAffected)
	}

	// The row is now locked by this transaction, so reading it back is safe.
	var prog models.UserProgress
	if err := tx.Where("external_user_id = ?", c.UserID).First(&prog).Error; err != nil {
		return nil, fmt.Errorf("reload progress for %s: %w", c.UserID, err)
	}

	level := LevelForScore(prog.TotalXP)
	if level != prog.Level {
		updates := map[string]interface{}{"level": level}
		if level > prog.Level {
			now := l.now()
			updates["last_level_up_at"] = now
			prog.LastLevelUpAt = &now
		}
		if err := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ?", c.UserID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("set level for %s: %w", c.UserID, err)
		}
		prog.Level = level
	}

	entry := models.ActivityLog{
		ExternalUserID: c.UserID,
		Reason:         c.Reason,
		Amount:         c.Amount,
		SourceType:     c.SourceType,
		SourceID:       c.SourceID,
		BalanceAfter:   prog.TotalXP,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s %s for %s", ErrDuplicateCredit, c.SourceType, c.SourceID, c.UserID)
		}
		return nil, fmt.Errorf("append activity for %s: %w", c.UserID, err)
	}

	log.Printf("🎮 [LEDGER] %s +%d XP → total=%d level=%d (%s %s:%s)",
		c.UserID, c.Amount, prog.TotalXP, prog.Level, c.Reason, c.SourceType, c.SourceID)
	return &prog, nil
}
