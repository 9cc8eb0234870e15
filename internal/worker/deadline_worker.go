package worker

import (
	"context"
	"time"

	"github.com/quizmasterhq/quizmaster/internal/service"
	"github.com/rs/zerolog"
)

const sweepBatchSize = 100

// DeadlineWorker periodically finalizes in-progress attempts whose
// whole-test deadline has passed. The client normally force-submits itself
// near the deadline; this sweeper is the server-side backstop for takers
// whose browser died, so no attempt stays in_progress forever.
type DeadlineWorker struct {
	attemptService *service.AttemptService
	interval       time.Duration
	grace          time.Duration
	log            zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker. The grace period gives
// the client's own near-deadline trigger time to land first.
func NewDeadlineWorker(attemptService *service.AttemptService, interval, grace time.Duration, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		attemptService: attemptService,
		interval:       interval,
		grace:          grace,
		log:            log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	expired, err := w.attemptService.ListExpired(ctx, w.grace, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep query failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	submitted := 0
	for _, e := range expired {
		outcome, err := w.attemptService.ForceSubmitExpired(ctx, e.TestID, e.StudentID)
		if err != nil {
			w.log.Error().Err(err).
				Str("test_id", e.TestID.String()).
				Int("student_id", e.StudentID).
				Msg("Force submit failed")
			continue
		}
		if !outcome.AlreadySubmitted {
			submitted++
		}
	}

	w.log.Info().Int("expired", len(expired)).Int("submitted", submitted).Msg("Sweep complete")
}
