package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quest-battle-service/models"

	"gorm.io/gorm"
)

// Settlement is the result of resolving one battle.
type Settlement struct {
	BattleID         string    `json:"battle_id"`
	ChallengerID     string    `json:"challenger_id"`
	ChallengedID     string    `json:"challenged_id"`
	WinnerID         *string   `json:"winner_id"`
	ChallengerXP     int64     `json:"challenger_xp"`
	ChallengedXP     int64     `json:"challenged_xp"`
	ChallengerCredit int64     `json:"challenger_credit"`
	ChallengedCredit int64     `json:"challenged_credit"`
	IsTie            bool      `json:"is_tie"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

// Standings is a read-only preview of how a battle would settle right now.
type Standings struct {
	BattleID          string              `json:"battle_id"`
	Status            models.BattleStatus `json:"status"`
	EndDate           time.Time           `json:"end_date"`
	ChallengerID      string              `json:"challenger_id"`
	ChallengedID      string              `json:"challenged_id"`
	ChallengerXP      int64               `json:"challenger_xp"`
	ChallengedXP      int64               `json:"challenged_xp"`
	ChallengerPending int                 `json:"challenger_pending"`
	ChallengedPending int                 `json:"challenged_pending"`
	LeaderID          *string             `json:"leader_id"`
	ChallengerCredit  int64               `json:"projected_challenger_credit"`
	ChallengedCredit  int64               `json:"projected_challenged_credit"`
}

// BadgeAwarder is notified after a settlement commits.
type BadgeAwarder interface {
	AutoAwardBadges(ctx context.Context, externalUserID string) error
}

type ResolutionService struct {
	DB     *gorm.DB
	Ledger *XPLedger

	// Badges is optional; failures there never affect a settlement.
	Badges BadgeAwarder
	// Archiver is optional; sweep reports are uploaded when set.
	Archiver ReportArchiver

	SweepConcurrency int
	SweepBatchSize   int

	now func() time.Time
}

func NewResolutionService(db *gorm.DB, ledger *XPLedger) *ResolutionService {
	return &ResolutionService{
		DB:               db,
		Ledger:           ledger,
		SweepConcurrency: 4,
		SweepBatchSize:   200,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for expiry and timestamps.
func (s *ResolutionService) SetClock(now func() time.Time) {
	s.now = now
}

// GetBattle loads a battle or returns ErrBattleNotFound.
func (s *ResolutionService) GetBattle(ctx context.Context, battleID string) (*models.Battle, error) {
	var b models.Battle
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, resolutionErr(battleID, ErrBattleNotFound)
		}
		return nil, fmt.Errorf("load battle %s: %w", battleID, err)
	}
	return &b, nil
}

// ResolveBattle settles one ACTIVE battle exactly once. A second call, or
// the loser of a concurrent race, gets ErrAlreadyResolved and applies no
// credit. Any store failure rolls everything back and leaves the battle
// ACTIVE (ErrTransactionFailed).
func (s *ResolutionService) ResolveBattle(ctx context.Context, battleID string) (*Settlement, error) {
	var settlement *Settlement
	var guardErr error

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Battle
		if err := tx.First(&b, "id = ?", battleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				guardErr = resolutionErr(battleID, ErrBattleNotFound)
				return guardErr
			}
			return err
		}
		// Fast path only; the conditional update below is the real gate.
		if b.Status != models.BattleStatusActive {
			guardErr = statusError(battleID, b.Status)
			return guardErr
		}

		var records []models.DailyRecord
		if err := tx.Where("battle_id = ?", battleID).Order("day ASC").Find(&records).Error; err != nil {
			return fmt.Errorf("load daily records: %w", err)
		}
		outcome, err := ComputeOutcome(&b, records)
		if err != nil {
			return err
		}

		resolvedAt := s.now()
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND status = ?", battleID, models.BattleStatusActive).
			Updates(map[string]interface{}{
				"status":        models.BattleStatusCompleted,
				"winner_id":     outcome.WinnerID,
				"challenger_xp": outcome.ChallengerXP,
				"challenged_xp": outcome.ChallengedXP,
				"completed_at":  resolvedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("complete battle: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Someone else moved it out of ACTIVE after our read.
			guardErr = s.lostRace(tx, battleID)
			return guardErr
		}

		credits := []Credit{
			{UserID: b.ChallengerID, Amount: outcome.ChallengerCredit, Reason: outcome.ChallengerReason},
			{UserID: b.ChallengedID, Amount: outcome.ChallengedCredit, Reason: outcome.ChallengedReason},
		}
		for _, c := range credits {
			if c.Amount == 0 {
				continue
			}
			c.SourceType = models.SourceBattle
			c.SourceID = battleID
			if _, err := s.Ledger.Apply(tx, c); err != nil {
				return err
			}
		}

		settlement = &Settlement{
			BattleID:         battleID,
			ChallengerID:     b.ChallengerID,
			ChallengedID:     b.ChallengedID,
			WinnerID:         outcome.WinnerID,
			ChallengerXP:     outcome.ChallengerXP,
			ChallengedXP:     outcome.ChallengedXP,
			ChallengerCredit: outcome.ChallengerCredit,
			ChallengedCredit: outcome.ChallengedCredit,
			IsTie:            outcome.IsTie(),
			ResolvedAt:       resolvedAt,
		}
		return nil
	})
	if err != nil {
		if guardErr != nil && errors.Is(err, guardErr) {
			log.Printf("[RESOLVE] battle %s skipped: %v", battleID, guardErr)
			return nil, guardErr
		}
		log.Printf("❌ [RESOLVE] battle %s rolled back: %v", battleID, err)
		return nil, txFailure(battleID, err)
	}

	winner := "tie"
	if settlement.WinnerID != nil {
		winner = *settlement.WinnerID
	}
	log.Printf("✅ [RESOLVE] battle %s completed: winner=%s challenger=%d(+%d) challenged=%d(+%d)",
		battleID, winner, settlement.ChallengerXP, settlement.ChallengerCredit,
		settlement.ChallengedXP, settlement.ChallengedCredit)

	s.awardBadges(ctx, settlement)
	return settlement, nil
}

// lostRace classifies a conditional update that matched no row.
func (s *ResolutionService) lostRace(tx *gorm.DB, battleID string) error {
	var current models.Battle
	if err := tx.Select("id", "status").First(&current, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resolutionErr(battleID, ErrBattleNotFound)
		}
		// Unknown state; report as already handled rather than guess.
		return &ResolutionError{BattleID: battleID, Kind: ErrAlreadyResolved, Cause: err}
	}
	if current.Status == models.BattleStatusActive {
		// Cannot happen under a single conditional update; treat as conflict.
		return &ResolutionError{BattleID: battleID, Kind: ErrAlreadyResolved, Status: current.Status}
	}
	return statusError(battleID, current.Status)
}

func (s *ResolutionService) awardBadges(ctx context.Context, st *Settlement) {
	if s.Badges == nil {
		return
	}
	for _, userID := range []string{st.ChallengerID, st.ChallengedID} {
		if err := s.Badges.AutoAwardBadges(ctx, userID); err != nil {
			log.Printf("⚠️ [RESOLVE] badge check for %s after battle %s failed: %v", userID, st.BattleID, err)
		}
	}
}

// Standings computes the would-be outcome of a battle without writing.
func (s *ResolutionService) Standings(ctx context.Context, battleID string) (*Standings, error) {
	b, err := s.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	var records []models.DailyRecord
	if err := s.DB.WithContext(ctx).Where("battle_id = ?", battleID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load daily records for %s: %w", battleID, err)
	}
	o, err := ComputeOutcome(b, records)
	if err != nil {
		return nil, err
	}
	return &Standings{
		BattleID:          b.ID,
		Status:            b.Status,
		EndDate:           b.EndDate,
		ChallengerID:      b.ChallengerID,
		ChallengedID:      b.ChallengedID,
		ChallengerXP:      o.ChallengerXP,
		ChallengedXP:      o.ChallengedXP,
		ChallengerPending: o.ChallengerPending,
		ChallengedPending: o.ChallengedPending,
		LeaderID:          o.WinnerID,
		ChallengerCredit:  o.ChallengerCredit,
		ChallengedCredit:  o.ChallengedCredit,
	}, nil
}
