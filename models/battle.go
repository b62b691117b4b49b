// models/battle.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BattleStatus is the lifecycle state of a Battle.
// PENDING → ACTIVE → COMPLETED; CANCELLED and DECLINED are reached before ACTIVE.
type BattleStatus string

const (
	BattleStatusPending   BattleStatus = "PENDING"
	BattleStatusActive    BattleStatus = "ACTIVE"
	BattleStatusCompleted BattleStatus = "COMPLETED"
	BattleStatusCancelled BattleStatus = "CANCELLED"
	BattleStatusDeclined  BattleStatus = "DECLINED"
)

// DefaultBattleDays is the standard battle window.
const DefaultBattleDays = 7

// ParseBattleStatus rejects anything outside the closed set.
func ParseBattleStatus(s string) (BattleStatus, error) {
	switch st := BattleStatus(s); st {
	case BattleStatusPending, BattleStatusActive, BattleStatusCompleted,
		BattleStatusCancelled, BattleStatusDeclined:
		return st, nil
	default:
		return "", fmt.Errorf("unknown battle status %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s BattleStatus) IsTerminal() bool {
	switch s {
	case BattleStatusCompleted, BattleStatusCancelled, BattleStatusDeclined:
		return true
	case BattleStatusPending, BattleStatusActive:
		return false
	default:
		return false
	}
}

// Battle is a time-boxed head-to-head competition between two users.
// Settlement fields are written once, by the resolution engine, together
// with the ACTIVE → COMPLETED transition.
type Battle struct {
	ID           string `json:"id" gorm:"primaryKey"`
	ChallengerID string `json:"challenger_id" gorm:"index;not null"` // external user id
	ChallengedID string `json:"challenged_id" gorm:"index;not null"` // external user id

	// Goal references are owned by the goal service; carried for display.
	ChallengerGoalID string `json:"challenger_goal_id,omitempty"`
	ChallengedGoalID string `json:"challenged_goal_id,omitempty"`

	StartDate    time.Time    `json:"start_date" gorm:"not null"`
	EndDate      time.Time    `json:"end_date" gorm:"not null;index:idx_battles_status_end,priority:2"`
	DurationDays int          `json:"duration_days" gorm:"default:7"`
	Status       BattleStatus `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index:idx_battles_status_end,priority:1"`

	// Settlement
	WinnerID     *string    `json:"winner_id"`
	ChallengerXP int64      `json:"challenger_xp" gorm:"default:0"` // approved sum, not the ledger credit
	ChallengedXP int64      `json:"challenged_xp" gorm:"default:0"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (b *Battle) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.ChallengerID == b.ChallengedID {
		return fmt.Errorf("battle participants must be distinct (got %q twice)", b.ChallengerID)
	}
	if b.Status == "" {
		b.Status = BattleStatusPending
	}
	if b.DurationDays == 0 {
		b.DurationDays = DefaultBattleDays
	}
	return nil
}

// HasParticipant reports whether userID is one of the two sides.
func (b *Battle) HasParticipant(userID string) bool {
	return userID != "" && (userID == b.ChallengerID || userID == b.ChallengedID)
}

// IsTie is only meaningful once the battle is COMPLETED.
func (b *Battle) IsTie() bool {
	return b.Status == BattleStatusCompleted && b.WinnerID == nil
}
