package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationStatus is the upstream verdict on a daily submission.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch v := VerificationStatus(s); v {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return v, nil
	default:
		return "", fmt.Errorf("unknown verification status %q", s)
	}
}

// DailyRecord is one participant's submission for one day of a battle.
// Written by the verification service; this service only reads it.
type DailyRecord struct {
	ID           string             `json:"id" gorm:"primaryKey"`
	BattleID     string             `json:"battle_id" gorm:"not null;uniqueIndex:idx_daily_record_day,priority:1"`
	UserID       string             `json:"user_id" gorm:"not null;uniqueIndex:idx_daily_record_day,priority:2"`
	Day          int                `json:"day" gorm:"not null;uniqueIndex:idx_daily_record_day,priority:3"` // 1..duration
	Verification VerificationStatus `json:"verification" gorm:"type:varchar(16);not null;default:'PENDING'"`
	XPAwarded    int64              `json:"xp_awarded" gorm:"default:0"` // counts only when APPROVED
	CreatedAt    time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (r *DailyRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Verification == "" {
		r.Verification = VerificationPending
	}
	return nil
}
