package model

import (
	"time"

	"github.com/google/uuid"
)

// Test represents a timed multiple-choice test authored by a teacher.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         int        `json:"owner_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	// SecondsPerQuestion is the explicit per-question budget. The attempt
	// subsystem prefers this over re-deriving from DurationMinutes, which
	// is rounded up to a whole minute at creation and therefore lossy.
	SecondsPerQuestion *int      `json:"seconds_per_question,omitempty"`
	Active             bool      `json:"active"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Question represents a single test question. CorrectIndex is the
// canonical zero-based answer index and is never sent to students.
type Question struct {
	ID           uuid.UUID `json:"id"`
	TestID       uuid.UUID `json:"test_id"`
	Text         string    `json:"text"`
	Options      []string  `json:"options"`
	CorrectIndex int       `json:"correct_index"`
	Position     int       `json:"position"`
}

// StudentQuestion is a question as sent to students: no correct index.
type StudentQuestion struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"text"`
	Options []string  `json:"options"`
}

// TestPayload is the student-facing test payload, cached in Redis.
// Questions are in canonical order; the per-attempt display order is
// applied client-side from the attempt's stored permutations.
type TestPayload struct {
	ID                 uuid.UUID         `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	DurationMinutes    int               `json:"duration_minutes"`
	SecondsPerQuestion *int              `json:"seconds_per_question,omitempty"`
	Active             bool              `json:"active"`
	StartDate          time.Time         `json:"start_date"`
	EndDate            time.Time         `json:"end_date"`
	Questions          []StudentQuestion `json:"questions"`
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Title              string     `json:"title" binding:"required,min=3,max=255"`
	Description        string     `json:"description" binding:"max=2000"`
	SecondsPerQuestion int        `json:"seconds_per_question" binding:"required,min=5,max=600"`
	StartDate          *time.Time `json:"start_date" binding:"required"`
	EndDate            *time.Time `json:"end_date" binding:"required,gtfield=StartDate"`
}

// UpdateTestRequest is the payload for updating an existing test.
type UpdateTestRequest struct {
	Title              string     `json:"title" binding:"omitempty,min=3,max=255"`
	Description        *string    `json:"description" binding:"omitempty,max=2000"`
	SecondsPerQuestion *int       `json:"seconds_per_question" binding:"omitempty,min=5,max=600"`
	StartDate          *time.Time `json:"start_date" binding:"omitempty"`
	EndDate            *time.Time `json:"end_date" binding:"omitempty"`
}

// AddQuestionRequest is one question in a bulk replace.
type AddQuestionRequest struct {
	Text         string   `json:"text" binding:"required,min=1,max=2000"`
	Options      []string `json:"options" binding:"required,min=2,max=8,dive,required,max=500"`
	CorrectIndex int      `json:"correct_index" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing a test's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
