// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartResolutionSweep runs ResolveExpiredBattles every interval until the
// returned scheduler is shut down. gocron's singleton mode skips a tick if
// the previous sweep is still running.
func (s *ResolutionService) StartResolutionSweep(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.ResolveExpiredBattles(ctx); err != nil {
				log.Printf("[Scheduler] sweep failed: %v", err)
			}
		}),
		gocron.WithName("resolve-expired-battles"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("register sweep job: %w", err)
	}

	sched.Start()
	log.Printf("✅ [Scheduler] battle sweep every %s", interval)
	return sched, nil
}
