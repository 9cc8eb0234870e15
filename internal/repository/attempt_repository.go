package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, test_id, student_id, status, started_at,
	submitted_at, question_order, option_orders, score`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &a.Status, &a.StartedAt,
		&a.SubmittedAt, &a.QuestionOrder, &a.OptionOrders, &a.Score)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetLatest retrieves the most recent attempt for a (test, student) pair.
func (r *AttemptRepository) GetLatest(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE test_id = $1 AND student_id = $2
		 ORDER BY started_at DESC
		 LIMIT 1`, testID, studentID))
}

// Create inserts a new attempt with its frozen question and option orders.
// The unique (test_id, student_id) constraint plus ON CONFLICT DO NOTHING
// makes this the idempotency anchor: a concurrent or repeated start never
// produces a second row. Returns pgx.ErrNoRows when the row already existed.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, student_id, status, question_order, option_orders)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.TestID, a.StudentID, model.AttemptStatusInProgress,
		a.QuestionOrder, a.OptionOrders,
	).Scan(&a.ID, &a.StartedAt)
}

// Finalize flips the attempt to submitted and records its result in one
// transaction. The conditional UPDATE is the submit-once gate: when another
// submission already won, zero rows match and Finalize reports
// alreadySubmitted without touching anything.
func (r *AttemptRepository) Finalize(ctx context.Context, res *model.Result) (alreadySubmitted bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var submittedAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, submitted_at = NOW()
		 WHERE id = $3 AND status = $4
		 RETURNING submitted_at`,
		model.AttemptStatusSubmitted, res.Score, res.AttemptID,
		model.AttemptStatusInProgress,
	).Scan(&submittedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return true, nil
		}
		return false, fmt.Errorf("finalize attempt: %w", err)
	}
	res.SubmittedAt = submittedAt

	err = tx.QueryRow(ctx,
		`INSERT INTO results (attempt_id, test_id, student_id, score, correct, total, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		res.AttemptID, res.TestID, res.StudentID, res.Score,
		res.Correct, res.Total, submittedAt,
	).Scan(&res.ID)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}

	return false, tx.Commit(ctx)
}

// SavedAnswers reads the answers the worker persisted for an attempt,
// keyed by display index. This is the durable copy behind the Redis
// autosave hash; the sweeper and the state endpoint fall back to it when
// the hash is missing.
func (r *AttemptRepository) SavedAnswers(ctx context.Context, testID uuid.UUID, studentID int) (map[int]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT display_index, answer
		 FROM attempt_answers
		 WHERE test_id = $1 AND student_id = $2`, testID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	saved := make(map[int]int)
	for rows.Next() {
		var idx, ans int
		if err := rows.Scan(&idx, &ans); err != nil {
			return nil, err
		}
		saved[idx] = ans
	}
	return saved, rows.Err()
}

// ExpiredAttemptRow identifies an in-progress attempt whose whole-test
// deadline has passed, for the deadline sweeper.
type ExpiredAttemptRow struct {
	AttemptID uuid.UUID
	TestID    uuid.UUID
	StudentID int
}

// ListExpired finds in-progress attempts whose started_at plus the test
// duration (plus grace) lies in the past.
func (r *AttemptRepository) ListExpired(ctx context.Context, grace time.Duration, limit int) ([]ExpiredAttemptRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.test_id, a.student_id
		 FROM attempts a
		 JOIN tests t ON a.test_id = t.id
		 WHERE a.status = $1
		   AND a.started_at + make_interval(mins => t.duration_minutes) + $2::interval < NOW()
		 ORDER BY a.started_at
		 LIMIT $3`,
		model.AttemptStatusInProgress, grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredAttemptRow
	for rows.Next() {
		var e ExpiredAttemptRow
		if err := rows.Scan(&e.AttemptID, &e.TestID, &e.StudentID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}
