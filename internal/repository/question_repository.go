package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves all questions for a test in canonical order.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, text, options, correct_index, position
		 FROM questions WHERE test_id = $1
		 ORDER BY position`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Options, &q.CorrectIndex, &q.Position); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountByTest returns the number of questions in a test.
func (r *QuestionRepository) CountByTest(ctx context.Context, testID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE test_id = $1`, testID).Scan(&n)
	return n, err
}

// ReplaceForTest atomically swaps a test's question set.
func (r *QuestionRepository) ReplaceForTest(ctx context.Context, testID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE test_id = $1`, testID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		batch.Queue(
			`INSERT INTO questions (test_id, text, options, correct_index, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			testID, questions[i].Text, questions[i].Options,
			questions[i].CorrectIndex, questions[i].Position)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}
