package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `id, owner_id, title, description, duration_minutes,
	seconds_per_question, active, start_date, end_date, created_at, updated_at`

func scanTest(row interface{ Scan(...any) error }) (*model.Test, error) {
	t := &model.Test{}
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.DurationMinutes,
		&t.SecondsPerQuestion, &t.Active, &t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests WHERE id = $1`, id))
}

// Create inserts a new test (inactive by default).
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (owner_id, title, description, duration_minutes,
		                    seconds_per_question, active, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		t.OwnerID, t.Title, t.Description, t.DurationMinutes,
		t.SecondsPerQuestion, t.Active, t.StartDate, t.EndDate,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// Update modifies an existing test.
func (r *TestRepository) Update(ctx context.Context, t *model.Test) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests
		 SET title = $1, description = $2, duration_minutes = $3,
		     seconds_per_question = $4, active = $5, start_date = $6,
		     end_date = $7, updated_at = NOW()
		 WHERE id = $8`,
		t.Title, t.Description, t.DurationMinutes, t.SecondsPerQuestion,
		t.Active, t.StartDate, t.EndDate, t.ID)
	return err
}

// SetActive flips the active flag.
func (r *TestRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tests SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return err
}

// Delete removes a test. Questions and attempts cascade.
func (r *TestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	return err
}

// ListByOwnerPaginated retrieves tests created by an owner with pagination.
func (r *TestRepository) ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Test, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, *t)
	}
	return tests, total, rows.Err()
}

// ListActive retrieves all currently active tests, used for cache prewarming
// and for the student lobby.
func (r *TestRepository) ListActive(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests WHERE active ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}
