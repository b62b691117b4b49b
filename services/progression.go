package services

import (
	"context"
	"fmt"

	"quest-battle-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressView is what the progress endpoint returns.
type ProgressView struct {
	models.UserProgress
	XPToNextLevel int64 `json:"xp_to_next_level"`
	BattlesWon    int64 `json:"battles_won"`
	BattlesTied   int64 `json:"battles_tied"`
	BattlesLost   int64 `json:"battles_lost"`
}

// ActivityPage is one page of a user's ledger history.
type ActivityPage struct {
	Items      []models.ActivityLog `json:"items"`
	Page       int                  `json:"page"`
	Size       int                  `json:"size"`
	TotalItems int64                `json:"total_items"`
	TotalPages int                  `json:"total_pages"`
}

type ProgressionService struct {
	DB     *gorm.DB
	Ledger *XPLedger
}

func NewProgressionService(db *gorm.DB, ledger *XPLedger) *ProgressionService {
	return &ProgressionService{DB: db, Ledger: ledger}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent)
func (s *ProgressionService) EnsureProgressRecord(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	db := s.DB.WithContext(ctx)
	seed := models.UserProgress{ExternalUserID: externalUserID, Level: 1}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var prog models.UserProgress
	if err := db.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, err
	}
	return &prog, nil
}

// GetProgress returns score, level and battle tallies derived from the ledger.
func (s *ProgressionService) GetProgress(ctx context.Context, externalUserID string) (*ProgressView, error) {
	prog, err := s.EnsureProgressRecord(ctx, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("progress for %s: %w", externalUserID, err)
	}
	tallies, err := s.BattleTallies(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	return &ProgressView{
		UserProgress:  *prog,
		XPToNextLevel: XPToNextLevel(prog.TotalXP),
		BattlesWon:    tallies[models.ReasonBattleWon],
		BattlesTied:   tallies[models.ReasonBattleTie],
		BattlesLost:   tallies[models.ReasonBattleLost],
	}, nil
}

// BattleTallies counts battle outcomes per reason from the activity log.
// Battles where the user scored nothing leave no row and are not counted.
func (s *ProgressionService) BattleTallies(ctx context.Context, externalUserID string) (map[models.ActivityReason]int64, error) {
	var rows []struct {
		Reason models.ActivityReason
		Count  int64
	}
	err := s.DB.WithContext(ctx).
		Model(&models.ActivityLog{}).
		Select("reason, COUNT(*) AS count").
		Where("external_user_id = ? AND source_type = ?", externalUserID, models.SourceBattle).
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("battle tallies for %s: %w", externalUserID, err)
	}
	out := make(map[models.ActivityReason]int64, len(rows))
	for _, r := range rows {
		out[r.Reason] = r.Count
	}
	return out, nil
}

// AwardXP credits XP from a non-battle source (quest completion, operator
// grant) through the ledger, in its own transaction.
func (s *ProgressionService) AwardXP(ctx context.Context, c Credit) (*models.UserProgress, error) {
	switch c.SourceType {
	case models.SourceQuest, models.SourceManual:
	case models.SourceBattle:
		return nil, fmt.Errorf("%w: battle credits are written by settlement only", ErrInvalidCredit)
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", ErrInvalidCredit, c.SourceType)
	}
	switch {
	case c.Reason.IsBattleOutcome():
		return nil, fmt.Errorf("%w: reason %s is reserved for battles", ErrInvalidCredit, c.Reason)
	case c.Reason != models.ReasonQuestCompleted && c.Reason != models.ReasonManualGrant:
		return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidCredit, c.Reason)
	}

	var updated *models.UserProgress
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prog, err := s.Ledger.Apply(tx, c)
		if err != nil {
			return err
		}
		updated = prog
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// zero credit: nothing written
		return s.EnsureProgressRecord(ctx, c.UserID)
	}
	return updated, nil
}

// GetActivity returns the user's ledger history, newest first.
func (s *ProgressionService) GetActivity(ctx context.Context, externalUserID string, page, size int) (*ActivityPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	db := s.DB.WithContext(ctx)
	var total int64
	if err := db.Model(&models.ActivityLog{}).
		Where("external_user_id = ?", externalUserID).
		Count(&total).Error; err != nil {
		return nil, err
	}

	items := []models.ActivityLog{}
	if err := db.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Limit(size).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}

	return &ActivityPage{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}
