package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// StudentResult combines a result row with the student's identity for
// teacher-facing listings.
type StudentResult struct {
	StudentID   int       `json:"student_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Score       float64   `json:"score"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ResultRepository handles result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// GetByTestAndStudent retrieves a student's result for a test.
func (r *ResultRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.Result, error) {
	res := &model.Result{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, test_id, student_id, score, correct, total, submitted_at
		 FROM results
		 WHERE test_id = $1 AND student_id = $2`, testID, studentID,
	).Scan(&res.ID, &res.AttemptID, &res.TestID, &res.StudentID,
		&res.Score, &res.Correct, &res.Total, &res.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListByTest retrieves all student results for a test with pagination.
func (r *ResultRepository) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]StudentResult, int, error) {
	offset := (page - 1) * perPage

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT res.student_id, u.name, u.email, res.score, res.correct, res.total, res.submitted_at
		 FROM results res
		 JOIN users u ON res.student_id = u.id
		 WHERE res.test_id = $1
		 ORDER BY res.submitted_at DESC
		 LIMIT $2 OFFSET $3`, testID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []StudentResult
	for rows.Next() {
		var sr StudentResult
		if err := rows.Scan(&sr.StudentID, &sr.Name, &sr.Email, &sr.Score,
			&sr.Correct, &sr.Total, &sr.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, sr)
	}
	return results, total, rows.Err()
}
