package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"quest-battle-service/models"

	"golang.org/x/sync/errgroup"
)

// SweepError is one battle the sweep could not settle.
type SweepError struct {
	BattleID string `json:"battle_id"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// SweepReport is the machine-readable result of ResolveExpiredBattles.
type SweepReport struct {
	Resolved      []Settlement `json:"resolved"`
	Errors        []SweepError `json:"errors"`
	ResolvedCount int          `json:"resolved_count"`
	ErrorCount    int          `json:"error_count"`
	Timestamp     time.Time    `json:"timestamp"`
	DurationMs    int64        `json:"duration_ms"`
}

// ExpiredBattleIDs returns ACTIVE battles whose window has closed, oldest first.
func (s *ResolutionService) ExpiredBattleIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	q := s.DB.WithContext(ctx).
		Model(&models.Battle{}).
		Where("status = ? AND end_date <= ?", models.BattleStatusActive, now).
		Order("end_date ASC")
	if s.SweepBatchSize > 0 {
		q = q.Limit(s.SweepBatchSize)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("select expired battles: %w", err)
	}
	return ids, nil
}

type sweepOutcome struct {
	settlement *Settlement
	err        error
}

// ResolveExpiredBattles settles every expired ACTIVE battle. Each battle is
// its own transaction; failures are collected, never propagated. The
// returned error is non-nil only when the candidate query itself failed.
func (s *ResolutionService) ResolveExpiredBattles(ctx context.Context) (*SweepReport, error) {
	started := s.now()
	report := &SweepReport{
		Resolved:  []Settlement{},
		Errors:    []SweepError{},
		Timestamp: started,
	}

	ids, err := s.ExpiredBattleIDs(ctx, started)
	if err != nil {
		log.Printf("❌ [SWEEP] %v", err)
		return nil, err
	}
	if len(ids) == 0 {
		log.Printf("[SWEEP] no expired battles")
		return report, nil
	}
	log.Printf("[SWEEP] resolving %d expired battle(s)", len(ids))

	results := make([]sweepOutcome, len(ids))
	var g errgroup.Group
	limit := s.SweepConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			st, err := s.resolveIsolated(ctx, id)
			results[i] = sweepOutcome{settlement: st, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.err != nil {
			report.Errors = append(report.Errors, SweepError{
				BattleID: ids[i],
				Code:     ErrorCode(r.err),
				Error:    r.err.Error(),
			})
			continue
		}
		report.Resolved = append(report.Resolved, *r.settlement)
	}
	report.ResolvedCount = len(report.Resolved)
	report.ErrorCount = len(report.Errors)
	report.DurationMs = s.now().Sub(started).Milliseconds()

	log.Printf("✅ [SWEEP] done: %d resolved, %d errors in %dms",
		report.ResolvedCount, report.ErrorCount, report.DurationMs)

	if s.Archiver != nil {
		if err := s.Archiver.ArchiveSweepReport(ctx, report); err != nil {
			log.Printf("⚠️ [SWEEP] archive report failed: %v", err)
		}
	}
	return report, nil
}

// resolveIsolated keeps a panic in one battle from taking down the sweep.
func (s *ResolutionService) resolveIsolated(ctx context.Context, battleID string) (st *Settlement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = txFailure(battleID, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.ResolveBattle(ctx, battleID)
}
