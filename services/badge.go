package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quest-battle-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// badgeStats are the values badge thresholds are compared against.
type badgeStats struct {
	BattlesWon    int64
	BattlesPlayed int64
	Level         int
}

// AutoAwardBadges checks all badge triggers for a user after a settlement.
// Already-held badges are skipped by the unique index.
func (s *BadgeService) AutoAwardBadges(ctx context.Context, externalUserID string) error {
	stats, err := s.stats(ctx, externalUserID)
	if err != nil {
		return err
	}

	for _, trigger := range models.BadgeTriggers {
		if !meetsThreshold(stats, trigger.Threshold) {
			continue
		}
		badge := models.UserBadge{ExternalUserID: externalUserID, BadgeCode: trigger.Code}
		res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&badge)
		if res.Error != nil {
			return fmt.Errorf("award %s to %s: %w", trigger.Code, externalUserID, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Printf("🎖️ [BADGE] %s → %s", trigger.Name, externalUserID)
		}
	}
	return nil
}

// ListBadges returns the badges a user holds, oldest first.
func (s *BadgeService) ListBadges(ctx context.Context, externalUserID string) ([]models.UserBadge, error) {
	badges := []models.UserBadge{}
	err := s.DB.WithContext(ctx).
		Where("external_user_id = ?", externalUserID).
		Order("awarded_at ASC").
		Find(&badges).Error
	return badges, err
}

func (s *BadgeService) stats(ctx context.Context, externalUserID string) (badgeStats, error) {
	var st badgeStats
	db := s.DB.WithContext(ctx)

	var prog models.UserProgress
	err := db.Where("external_user_id = ?", externalUserID).First(&prog).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		st.Level = 1
	case err != nil:
		return st, err
	default:
		st.Level = prog.Level
	}

	if err := db.Model(&models.ActivityLog{}).
		Where("external_user_id = ? AND reason = ?", externalUserID, models.ReasonBattleWon).
		Count(&st.BattlesWon).Error; err != nil {
		return st, err
	}
	if err := db.Model(&models.ActivityLog{}).
		Where("external_user_id = ? AND source_type = ?", externalUserID, models.SourceBattle).
		Count(&st.BattlesPlayed).Error; err != nil {
		return st, err
	}
	return st, nil
}

func meetsThreshold(st badgeStats, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "battles_won":
			if st.BattlesWon < required {
				return false
			}
		case "battles_played":
			if st.BattlesPlayed < required {
				return false
			}
		case "level":
			if int64(st.Level) < required {
				return false
			}
		default:
			return false
		}
	}
	return true
}
