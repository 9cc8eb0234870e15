package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. The transition
// in_progress -> submitted is one-way and happens exactly once.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Attempt is one student's single, non-repeatable instance of taking a test.
// QuestionOrder and OptionOrders are generated server-side exactly once at
// creation and never change afterwards, which is what makes reload-safe
// resumption possible.
type Attempt struct {
	ID        uuid.UUID     `json:"id"`
	TestID    uuid.UUID     `json:"test_id"`
	StudentID int           `json:"student_id"`
	Status    AttemptStatus `json:"status"`
	// StartedAt is server-assigned and is the authoritative clock origin
	// for the whole-test countdown.
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	// QuestionOrder is the display order: a permutation of the test's
	// question IDs.
	QuestionOrder []uuid.UUID `json:"question_order"`
	// OptionOrders maps question ID to that question's option permutation,
	// display index -> original index.
	OptionOrders map[string][]int `json:"option_orders"`
	Score        *float64         `json:"score,omitempty"`
}

// SubmitAttemptRequest carries the answer vector in display index space.
// Unanswered slots hold -1.
type SubmitAttemptRequest struct {
	Answers []int `json:"answers" binding:"required"`
}

// SubmitOutcome is the result of a submission call. AlreadySubmitted is
// set when the attempt had been finalized before this call; the client
// treats that as success-equivalent, not an error.
type SubmitOutcome struct {
	Status           AttemptStatus `json:"status"`
	AlreadySubmitted bool          `json:"already_submitted"`
	Score            *float64      `json:"score,omitempty"`
}

// AttemptState is the resumption snapshot served on reload: the remaining
// whole-test seconds computed from the authoritative start time, plus any
// autosaved answers.
type AttemptState struct {
	TestID           uuid.UUID      `json:"test_id"`
	StudentID        int            `json:"student_id"`
	Status           AttemptStatus  `json:"status"`
	RemainingSeconds float64        `json:"remaining_seconds"`
	AutosavedAnswers map[string]int `json:"autosaved_answers"`
}
