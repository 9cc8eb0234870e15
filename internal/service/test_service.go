package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Test gate errors, returned when a student action arrives outside the
// test's availability window.
var (
	ErrTestNotFound   = errors.New("test does not exist")
	ErrTestInactive   = errors.New("test is not active")
	ErrTestNotStarted = errors.New("test has not started yet")
	ErrTestEnded      = errors.New("test has ended")
	ErrNotTestOwner   = errors.New("test belongs to another teacher")
	ErrNoQuestions    = errors.New("test has no questions")
	ErrBadAnswerIndex = errors.New("correct answer index out of range")
)

// TestService handles teacher-side test management and the student payload
// cache.
type TestService struct {
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
}

// NewTestService creates a new TestService.
func NewTestService(
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
) *TestService {
	return &TestService{testRepo: testRepo, questionRepo: questionRepo, rdb: rdb}
}

// gateTest checks a test's availability window for student actions.
func gateTest(t *model.Test, now time.Time) error {
	if !t.Active {
		return ErrTestInactive
	}
	if now.Before(t.StartDate) {
		return ErrTestNotStarted
	}
	if now.After(t.EndDate) {
		return ErrTestEnded
	}
	return nil
}

// durationFromQuestions derives the whole-test duration in minutes from the
// question count and per-question budget, rounding seconds up.
func durationFromQuestions(questionCount, secondsPerQuestion int) int {
	totalSeconds := questionCount * secondsPerQuestion
	return (totalSeconds + 59) / 60
}

// Create registers a new test, inactive and without questions.
func (s *TestService) Create(ctx context.Context, ownerID int, req *model.CreateTestRequest) (*model.Test, error) {
	test := &model.Test{
		OwnerID:            ownerID,
		Title:              req.Title,
		Description:        req.Description,
		SecondsPerQuestion: &req.SecondsPerQuestion,
		Active:             false,
		StartDate:          *req.StartDate,
		EndDate:            *req.EndDate,
	}
	if err := s.testRepo.Create(ctx, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	return test, nil
}

// GetOwned fetches a test and verifies ownership.
func (s *TestService) GetOwned(ctx context.Context, testID uuid.UUID, ownerID int) (*model.Test, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.OwnerID != ownerID {
		return nil, ErrNotTestOwner
	}
	return test, nil
}

// Update modifies a test's metadata. The duration is recomputed when the
// per-question budget changes.
func (s *TestService) Update(ctx context.Context, testID uuid.UUID, ownerID int, req *model.UpdateTestRequest) (*model.Test, error) {
	test, err := s.GetOwned(ctx, testID, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		test.Title = req.Title
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.StartDate != nil {
		test.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		test.EndDate = *req.EndDate
	}
	if req.SecondsPerQuestion != nil {
		test.SecondsPerQuestion = req.SecondsPerQuestion
		count, err := s.questionRepo.CountByTest(ctx, testID)
		if err != nil {
			return nil, fmt.Errorf("count questions: %w", err)
		}
		test.DurationMinutes = durationFromQuestions(count, *req.SecondsPerQuestion)
	}

	if err := s.testRepo.Update(ctx, test); err != nil {
		return nil, fmt.Errorf("update test: %w", err)
	}
	s.invalidatePayload(ctx, testID)
	return test, nil
}

// SetActive publishes or unpublishes a test. Activation requires at least
// one question.
func (s *TestService) SetActive(ctx context.Context, testID uuid.UUID, ownerID int, active bool) (*model.Test, error) {
	test, err := s.GetOwned(ctx, testID, ownerID)
	if err != nil {
		return nil, err
	}

	if active {
		count, err := s.questionRepo.CountByTest(ctx, testID)
		if err != nil {
			return nil, fmt.Errorf("count questions: %w", err)
		}
		if count == 0 {
			return nil, ErrNoQuestions
		}
	}

	if err := s.testRepo.SetActive(ctx, testID, active); err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	test.Active = active

	if active {
		if err := s.WarmCache(ctx, test); err != nil {
			log.Warn().Err(err).Str("test_id", testID.String()).Msg("failed to warm payload cache")
		}
	} else {
		s.invalidatePayload(ctx, testID)
	}
	return test, nil
}

// Delete removes a test and its dependents.
func (s *TestService) Delete(ctx context.Context, testID uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, testID, ownerID); err != nil {
		return err
	}
	if err := s.testRepo.Delete(ctx, testID); err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	s.invalidatePayload(ctx, testID)
	return nil
}

// ListByOwner returns a teacher's tests with pagination.
func (s *TestService) ListByOwner(ctx context.Context, ownerID, page, perPage int) ([]model.Test, int, error) {
	offset := (page - 1) * perPage
	return s.testRepo.ListByOwnerPaginated(ctx, ownerID, perPage, offset)
}

// ReplaceQuestions swaps the full question set of a test and recomputes the
// whole-test duration from the new count. Activation stays untouched; the
// payload cache is refreshed.
func (s *TestService) ReplaceQuestions(ctx context.Context, testID uuid.UUID, ownerID int, req *model.ReplaceQuestionsRequest) (*model.Test, error) {
	test, err := s.GetOwned(ctx, testID, ownerID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		if q.CorrectIndex >= len(q.Options) {
			return nil, ErrBadAnswerIndex
		}
		questions[i] = model.Question{
			TestID:       testID,
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Position:     i,
		}
	}

	if err := s.questionRepo.ReplaceForTest(ctx, testID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}

	spq := 60
	if test.SecondsPerQuestion != nil {
		spq = *test.SecondsPerQuestion
	}
	test.DurationMinutes = durationFromQuestions(len(questions), spq)
	if err := s.testRepo.Update(ctx, test); err != nil {
		return nil, fmt.Errorf("update duration: %w", err)
	}

	if test.Active {
		if err := s.WarmCache(ctx, test); err != nil {
			log.Warn().Err(err).Str("test_id", testID.String()).Msg("failed to warm payload cache")
		}
	}
	return test, nil
}

// GetQuestions returns a test's questions with answers, for the owner.
func (s *TestService) GetQuestions(ctx context.Context, testID uuid.UUID, ownerID int) ([]model.Question, error) {
	if _, err := s.GetOwned(ctx, testID, ownerID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByTest(ctx, testID)
}

// GetStudentPayload returns the answer-stripped test payload for takers,
// served from Redis with a PostgreSQL fallback that self-heals the cache.
func (s *TestService) GetStudentPayload(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error) {
	key := config.CacheKey.TestPayloadKey(testID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		payload := &model.TestPayload{}
		if err := json.Unmarshal([]byte(raw), payload); err == nil {
			return payload, nil
		}
		// Corrupt cache entry, rebuild below.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload cache: %w", err)
	}

	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	payload, err := s.buildPayload(ctx, test)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(payload); err == nil {
		_ = s.rdb.Set(ctx, key, raw, 0).Err()
	}
	return payload, nil
}

// WarmCache rebuilds and stores a test's student payload in Redis.
func (s *TestService) WarmCache(ctx context.Context, test *model.Test) error {
	payload, err := s.buildPayload(ctx, test)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.TestPayloadKey(test.ID), raw, 0).Err()
}

// PrewarmAll warms the payload cache for every active test, called once at
// startup.
func (s *TestService) PrewarmAll(ctx context.Context) error {
	tests, err := s.testRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tests: %w", err)
	}
	for i := range tests {
		if err := s.WarmCache(ctx, &tests[i]); err != nil {
			log.Warn().Err(err).Str("test_id", tests[i].ID.String()).Msg("prewarm failed")
		}
	}
	log.Info().Int("tests", len(tests)).Msg("payload cache prewarmed")
	return nil
}

func (s *TestService) buildPayload(ctx context.Context, test *model.Test) (*model.TestPayload, error) {
	questions, err := s.questionRepo.ListByTest(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	stripped := make([]model.StudentQuestion, len(questions))
	for i, q := range questions {
		stripped[i] = model.StudentQuestion{ID: q.ID, Text: q.Text, Options: q.Options}
	}

	return &model.TestPayload{
		ID:                 test.ID,
		Title:              test.Title,
		Description:        test.Description,
		DurationMinutes:    test.DurationMinutes,
		SecondsPerQuestion: test.SecondsPerQuestion,
		Active:             test.Active,
		StartDate:          test.StartDate,
		EndDate:            test.EndDate,
		Questions:          stripped,
	}, nil
}

func (s *TestService) invalidatePayload(ctx context.Context, testID uuid.UUID) {
	if err := s.rdb.Del(ctx, config.CacheKey.TestPayloadKey(testID)).Err(); err != nil {
		log.Warn().Err(err).Str("test_id", testID.String()).Msg("failed to invalidate payload cache")
	}
}
