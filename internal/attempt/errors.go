package attempt

import "errors"

// Sentinel errors shared between the session engine and Backend
// implementations. A Backend must translate its transport's failure modes
// into these so the engine can react uniformly.
var (
	// ErrAlreadySubmitted signals the attempt was finalized before this
	// call. Callers treat it as success-equivalent, never as a failure.
	ErrAlreadySubmitted = errors.New("attempt already submitted")

	// ErrNoAttempt means no attempt exists yet for this (test, student).
	ErrNoAttempt = errors.New("no attempt exists")

	// ErrSubmitRejected is a terminal, non-retryable submission failure
	// (malformed payload). Background triggers log it and move on; only
	// the explicit path surfaces it.
	ErrSubmitRejected = errors.New("submission rejected")

	// Test gate errors. Non-retryable without external state change.
	ErrTestInactive   = errors.New("test is not active")
	ErrTestNotStarted = errors.New("test has not started yet")
	ErrTestEnded      = errors.New("test has ended")

	ErrQuestionLocked = errors.New("question is locked")
	ErrUnanswered     = errors.New("unanswered questions remain")
	ErrNotRunning     = errors.New("session is not running")
)
