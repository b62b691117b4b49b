package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BadgeType: static config, never persisted
type BadgeType struct {
	Code        string           `json:"code"` // e.g., "FIRST_VICTORY"
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Rarity      string           `json:"rarity"`    // common, rare, epic, legendary
	Threshold   map[string]int64 `json:"threshold"` // e.g., {"battles_won": 1}
}

// UserBadge: awarded instance
type UserBadge struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:idx_user_badge,priority:1" json:"external_user_id"`
	BadgeCode      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_badge,priority:2" json:"badge_code"`
	AwardedAt      time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

func (b *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BadgeTriggers are evaluated after every settlement.
var BadgeTriggers = []BadgeType{
	{
		Code:        "FIRST_BATTLE",
		Name:        "Into the Arena",
		Description: "Finished your first battle with XP on the board",
		Rarity:      "common",
		Threshold:   map[string]int64{"battles_played": 1},
	},
	{
		Code:        "FIRST_VICTORY",
		Name:        "First Victory",
		Description: "Won a battle",
		Rarity:      "common",
		Threshold:   map[string]int64{"battles_won": 1},
	},
	{
		Code:        "GLADIATOR",
		Name:        "Gladiator",
		Description: "Won 10 battles",
		Rarity:      "epic",
		Threshold:   map[string]int64{"battles_won": 10},
	},
	{
		Code:        "VETERAN",
		Name:        "Veteran",
		Description: "Finished 25 battles",
		Rarity:      "rare",
		Threshold:   map[string]int64{"battles_played": 25},
	},
	{
		Code:        "LEVEL_10",
		Name:        "Double Digits",
		Description: "Reached level 10",
		Rarity:      "rare",
		Threshold:   map[string]int64{"level": 10},
	},
}

// AllModels lists every table this service migrates.
func AllModels() []interface{} {
	return []interface{}{
		&Battle{},
		&DailyRecord{},
		&UserProgress{},
		&ActivityLog{},
		&UserBadge{},
	}
}
