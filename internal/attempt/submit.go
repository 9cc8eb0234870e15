package attempt

import (
	"context"
	"errors"
)

// trigger identifies which of the four paths initiated a submission.
type trigger int

const (
	triggerExplicit trigger = iota
	triggerBackup
	triggerForced
	triggerDeadline
	triggerSuspend
)

func (t trigger) String() string {
	switch t {
	case triggerExplicit:
		return "explicit"
	case triggerBackup:
		return "backup"
	case triggerForced:
		return "forced"
	case triggerDeadline:
		return "deadline"
	default:
		return "suspend"
	}
}

// submit is the single submission funnel. Correctness rests on the
// server's idempotent submit; the min-gap debounce only trims redundant
// calls when triggers fire close together. An "already submitted" answer
// from the server is success, not failure.
func (s *Session) submit(ctx context.Context, trig trigger) error {
	s.mu.Lock()
	if s.status == StatusSubmitted {
		// Terminal state: no network call. Explicit re-submits still
		// steer the shell back to results.
		s.mu.Unlock()
		if trig == triggerExplicit {
			s.notifier.ResultsReady()
		}
		return nil
	}
	now := s.clock.Now()
	if trig == triggerBackup && now.Sub(s.lastSubmitAt) < BackupMinGap {
		s.mu.Unlock()
		return nil
	}
	s.lastSubmitAt = now
	answers := make([]int, len(s.answers))
	copy(answers, s.answers)
	s.mu.Unlock()

	err := s.backend.SubmitAttempt(ctx, s.testID, s.studentID, answers)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		if s.status != StatusSubmitted {
			s.status = StatusSubmitted
			s.notifier.Celebrate()
			s.notifier.ResultsReady()
			go s.stop()
		}
		return nil

	case errors.Is(err, ErrAlreadySubmitted):
		// Another trigger or another tab won; success-equivalent.
		if s.status != StatusSubmitted {
			s.status = StatusSubmitted
			s.notifier.ResultsReady()
			go s.stop()
		}
		return nil

	default:
		switch trig {
		case triggerExplicit:
			// Only the explicit path surfaces the error; the student
			// stays on the question view and can retry.
			return err
		case triggerForced, triggerDeadline:
			// The deadline has passed regardless of the call's fate, so
			// the shell navigates to results either way.
			s.log.Error().Err(err).Str("trigger", trig.String()).Msg("submit failed past deadline")
			s.notifier.ResultsReady()
			return nil
		default:
			// Backup and suspend are opportunistic; swallow and wait for
			// the next trigger.
			s.log.Warn().Err(err).Str("trigger", trig.String()).Msg("background submit failed")
			return nil
		}
	}
}
