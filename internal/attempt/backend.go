package attempt

import (
	"context"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// Backend is the external service contract the session depends on. The
// HTTP client in internal/apiclient implements it against the server;
// tests implement it in-memory.
type Backend interface {
	// FetchTest returns the answer-stripped test payload.
	FetchTest(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error)

	// LatestAttempt returns the most recent attempt for the pair, or
	// ErrNoAttempt.
	LatestAttempt(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error)

	// StartAttempt creates the attempt or returns the existing one
	// unchanged. Must be safe to call repeatedly.
	StartAttempt(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error)

	// SubmitAttempt sends the answer vector in display index space.
	// Returns ErrAlreadySubmitted when the attempt was finalized earlier;
	// the server performs the reverse permutation mapping and grading.
	SubmitAttempt(ctx context.Context, testID uuid.UUID, studentID int, answers []int) error
}

// Notifier receives session callbacks the surrounding shell renders:
// navigation to results, lock indicators, and the explicit-path error
// surface. Implementations must not block; they are called with the
// session lock held.
type Notifier interface {
	// ResultsReady fires when the session reaches the submitted state and
	// the shell should navigate to the results view.
	ResultsReady()

	// QuestionLocked fires once when a question's timer expires.
	QuestionLocked(index int)

	// Celebrate fires once, on the submission that actually finalized the
	// attempt from this session.
	Celebrate()
}

// NopNotifier is a Notifier that ignores every callback.
type NopNotifier struct{}

func (NopNotifier) ResultsReady()        {}
func (NopNotifier) QuestionLocked(int)   {}
func (NopNotifier) Celebrate()           {}
