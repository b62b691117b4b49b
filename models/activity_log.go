package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityReason tags every XP grant in the audit trail.
type ActivityReason string

const (
	ReasonBattleWon      ActivityReason = "BATTLE_WON"
	ReasonBattleTie      ActivityReason = "BATTLE_TIE"
	ReasonBattleLost     ActivityReason = "BATTLE_LOST"
	ReasonQuestCompleted ActivityReason = "QUEST_COMPLETED"
	ReasonManualGrant    ActivityReason = "MANUAL_GRANT"
)

// Source types for ActivityLog.SourceType.
const (
	SourceBattle = "battle"
	SourceQuest  = "quest"
	SourceManual = "manual"
)

// IsBattleOutcome reports whether the reason was written by battle settlement.
func (r ActivityReason) IsBattleOutcome() bool {
	switch r {
	case ReasonBattleWon, ReasonBattleTie, ReasonBattleLost:
		return true
	case ReasonQuestCompleted, ReasonManualGrant:
		return false
	default:
		return false
	}
}

// ActivityLog is an append-only audit row for one XP grant. Rows are never
// updated or deleted. (source_type, source_id, external_user_id) is unique,
// so a source can credit a given user at most once.
type ActivityLog struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	ExternalUserID string         `gorm:"not null;index;uniqueIndex:idx_activity_source,priority:3" json:"external_user_id"`
	Reason         ActivityReason `gorm:"type:varchar(32);not null;index" json:"reason"`
	Amount         int64          `gorm:"not null" json:"amount"`
	SourceType     string         `gorm:"type:varchar(32);not null;uniqueIndex:idx_activity_source,priority:1" json:"source_type"`
	SourceID       string         `gorm:"not null;uniqueIndex:idx_activity_source,priority:2" json:"source_id"`
	BalanceAfter   int64          `gorm:"not null" json:"balance_after"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
