package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the graded outcome persisted exactly once per attempt.
type Result struct {
	ID          uuid.UUID `json:"id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	TestID      uuid.UUID `json:"test_id"`
	StudentID   int       `json:"student_id"`
	Score       float64   `json:"score"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submitted_at"`
}
