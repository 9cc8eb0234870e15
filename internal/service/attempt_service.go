package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Attempt errors.
var (
	ErrAttemptNotFound     = errors.New("no attempt for this test")
	ErrAnswerCountMismatch = errors.New("answer count does not match question count")
	ErrResultNotFound      = errors.New("no result for this test")
)

// ResultEvent is published on the test's Redis results channel whenever a
// submission finalizes, and pushed to teachers over WebSocket.
type ResultEvent struct {
	TestID      uuid.UUID `json:"test_id"`
	StudentID   int       `json:"student_id"`
	Score       float64   `json:"score"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AttemptService handles the attempt lifecycle: idempotent start, autosave,
// the single idempotent submission funnel, and results.
type AttemptService struct {
	attemptRepo  *repository.AttemptRepository
	resultRepo   *repository.ResultRepository
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	resultRepo *repository.ResultRepository,
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
) *AttemptService {
	return &AttemptService{
		attemptRepo:  attemptRepo,
		resultRepo:   resultRepo,
		testRepo:     testRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
	}
}

// LobbyTest is a test as shown in the student lobby, with the student's own
// attempt status overlaid.
type LobbyTest struct {
	model.Test
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score         *float64             `json:"score,omitempty"`
}

// GetLobby lists active tests with the student's attempt status per test.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]LobbyTest, error) {
	tests, err := s.testRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tests: %w", err)
	}

	lobby := make([]LobbyTest, 0, len(tests))
	for i := range tests {
		entry := LobbyTest{Test: tests[i]}
		attempt, err := s.attemptRepo.GetLatest(ctx, tests[i].ID, studentID)
		if err == nil {
			entry.AttemptStatus = &attempt.Status
			entry.Score = attempt.Score
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// Start creates the student's attempt for a test, or returns the existing
// one unchanged. The display permutations and the authoritative start time
// are fixed at first creation; repeated calls, including concurrent ones,
// all converge on the same attempt row.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if err := gateTest(test, time.Now()); err != nil {
		return nil, err
	}

	questions, err := s.questionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	attempt := &model.Attempt{
		TestID:        testID,
		StudentID:     studentID,
		Status:        model.AttemptStatusInProgress,
		QuestionOrder: shuffledQuestionOrder(questions),
		OptionOrders:  shuffledOptionOrders(questions),
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Lost the race or already started: the existing row wins.
		attempt, err = s.attemptRepo.GetLatest(ctx, testID, studentID)
		if err != nil {
			return nil, fmt.Errorf("fetch existing attempt: %w", err)
		}
	}

	// Cache the start time so state reads skip PostgreSQL. Best effort: the
	// state endpoint falls back to the DB and self-heals on a miss.
	startKey := config.CacheKey.AttemptStartKey(testID, studentID)
	if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		log.Warn().Err(err).Str("test_id", testID.String()).Int("student_id", studentID).
			Msg("failed to cache attempt start time")
	}

	return attempt, nil
}

// Latest returns the student's attempt for a test, if any.
func (s *AttemptService) Latest(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetLatest(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// State returns the resumption snapshot: whole-test seconds remaining
// derived from the authoritative start time, plus autosaved answers. The
// start time is read from Redis with a PostgreSQL fallback that self-heals
// the cache.
func (s *AttemptService) State(ctx context.Context, testID uuid.UUID, studentID int) (*model.AttemptState, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	saved := s.savedAnswers(ctx, testID, studentID)
	answers := make(map[string]int, len(saved))
	for idx, ans := range saved {
		answers[strconv.Itoa(idx)] = ans
	}

	var status model.AttemptStatus
	var startUnix int64

	startKey := config.CacheKey.AttemptStartKey(testID, studentID)
	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		attempt, dbErr := s.attemptRepo.GetLatest(ctx, testID, studentID)
		if dbErr != nil {
			if errors.Is(dbErr, pgx.ErrNoRows) {
				return nil, ErrAttemptNotFound
			}
			return nil, fmt.Errorf("get attempt: %w", dbErr)
		}
		status = attempt.Status
		startUnix = attempt.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
	case err != nil:
		return nil, fmt.Errorf("get start time: %w", err)
	default:
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start time in cache: %w", err)
		}
		attempt, dbErr := s.attemptRepo.GetLatest(ctx, testID, studentID)
		if dbErr != nil {
			if errors.Is(dbErr, pgx.ErrNoRows) {
				return nil, ErrAttemptNotFound
			}
			return nil, fmt.Errorf("get attempt: %w", dbErr)
		}
		status = attempt.Status
	}

	deadline := time.Unix(startUnix, 0).Add(time.Duration(test.DurationMinutes) * time.Minute)
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		TestID:           testID,
		StudentID:        studentID,
		Status:           status,
		RemainingSeconds: remaining.Seconds(),
		AutosavedAnswers: answers,
	}, nil
}

// answerJob matches the payload the answer worker consumes from
// persist_answers_queue.
type answerJob struct {
	TestID       string `json:"test_id"`
	StudentID    int    `json:"student_id"`
	DisplayIndex int    `json:"display_index"`
	Answer       int    `json:"answer"`
}

// Autosave records a single answer selection in Redis and queues it for
// durable persistence by the answer worker.
func (s *AttemptService) Autosave(ctx context.Context, testID uuid.UUID, studentID, displayIndex, answer int) error {
	key := config.CacheKey.AttemptAnswersKey(testID, studentID)
	if err := s.rdb.HSet(ctx, key, strconv.Itoa(displayIndex), answer).Err(); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}

	job, err := json.Marshal(answerJob{
		TestID:       testID.String(),
		StudentID:    studentID,
		DisplayIndex: displayIndex,
		Answer:       answer,
	})
	if err != nil {
		return fmt.Errorf("marshal answer job: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		return fmt.Errorf("queue answer job: %w", err)
	}
	return nil
}

// Submit is the single submission funnel. All four triggers (explicit,
// periodic backup, forced near-deadline, tab close) land here; the first
// one to finalize wins and every later call gets AlreadySubmitted instead
// of an error.
func (s *AttemptService) Submit(ctx context.Context, testID uuid.UUID, studentID int, answers []int) (*model.SubmitOutcome, error) {
	attempt, err := s.attemptRepo.GetLatest(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return &model.SubmitOutcome{
			Status:           model.AttemptStatusSubmitted,
			AlreadySubmitted: true,
			Score:            attempt.Score,
		}, nil
	}

	questions, err := s.questionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(answers) != len(questions) {
		return nil, ErrAnswerCountMismatch
	}

	return s.finalize(ctx, attempt, questions, answers)
}

// ForceSubmitExpired finalizes an attempt whose deadline passed, grading
// whatever the autosave channel captured. Called by the deadline sweeper.
func (s *AttemptService) ForceSubmitExpired(ctx context.Context, testID uuid.UUID, studentID int) (*model.SubmitOutcome, error) {
	attempt, err := s.attemptRepo.GetLatest(ctx, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return &model.SubmitOutcome{
			Status:           model.AttemptStatusSubmitted,
			AlreadySubmitted: true,
			Score:            attempt.Score,
		}, nil
	}

	questions, err := s.questionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers := fillAnswerVector(len(questions), s.savedAnswers(ctx, testID, studentID))

	return s.finalize(ctx, attempt, questions, answers)
}

// savedAnswers reads the autosave hash from Redis, falling back to the
// rows the answer worker persisted in PostgreSQL when the hash is empty
// or unreachable. A student whose client vanished still gets graded on
// everything the autosave channel captured.
func (s *AttemptService) savedAnswers(ctx context.Context, testID uuid.UUID, studentID int) map[int]int {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(testID, studentID)).Result()
	if err == nil && len(raw) > 0 {
		return parseAnswerHash(raw)
	}
	if err != nil {
		log.Warn().Err(err).Str("test_id", testID.String()).Int("student_id", studentID).
			Msg("autosave hash unavailable, reading persisted answers")
	}

	saved, dbErr := s.attemptRepo.SavedAnswers(ctx, testID, studentID)
	if dbErr != nil {
		log.Warn().Err(dbErr).Str("test_id", testID.String()).Int("student_id", studentID).
			Msg("persisted answers unavailable, grading blanks")
		return nil
	}
	return saved
}

// parseAnswerHash converts the Redis autosave hash into answers keyed by
// display index, dropping fields that do not parse.
func parseAnswerHash(raw map[string]string) map[int]int {
	saved := make(map[int]int, len(raw))
	for field, val := range raw {
		idx, err1 := strconv.Atoi(field)
		ans, err2 := strconv.Atoi(val)
		if err1 == nil && err2 == nil {
			saved[idx] = ans
		}
	}
	return saved
}

// fillAnswerVector builds a display-order answer vector of length n from
// saved answers. Untouched slots stay -1; out-of-range indices are dropped.
func fillAnswerVector(n int, saved map[int]int) []int {
	answers := make([]int, n)
	for i := range answers {
		answers[i] = -1
	}
	for idx, ans := range saved {
		if idx >= 0 && idx < n {
			answers[idx] = ans
		}
	}
	return answers
}

func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, questions []model.Question, answers []int) (*model.SubmitOutcome, error) {
	correct := GradeAnswers(questions, attempt.QuestionOrder, attempt.OptionOrders, answers)
	total := len(questions)
	score := 0.0
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	result := &model.Result{
		AttemptID: attempt.ID,
		TestID:    attempt.TestID,
		StudentID: attempt.StudentID,
		Score:     score,
		Correct:   correct,
		Total:     total,
	}

	alreadySubmitted, err := s.attemptRepo.Finalize(ctx, result)
	if err != nil {
		return nil, err
	}
	if alreadySubmitted {
		// Another trigger won the race between our status read and the
		// conditional update. Report its score, not ours.
		existing, err := s.attemptRepo.GetLatest(ctx, attempt.TestID, attempt.StudentID)
		if err != nil {
			return nil, fmt.Errorf("fetch submitted attempt: %w", err)
		}
		return &model.SubmitOutcome{
			Status:           model.AttemptStatusSubmitted,
			AlreadySubmitted: true,
			Score:            existing.Score,
		}, nil
	}

	if err := s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attempt.TestID, attempt.StudentID)).Err(); err != nil {
		log.Warn().Err(err).Str("test_id", attempt.TestID.String()).
			Int("student_id", attempt.StudentID).Msg("failed to clear autosaved answers")
	}
	s.publishResult(ctx, result)

	return &model.SubmitOutcome{
		Status:           model.AttemptStatusSubmitted,
		AlreadySubmitted: false,
		Score:            &score,
	}, nil
}

func (s *AttemptService) publishResult(ctx context.Context, res *model.Result) {
	event, err := json.Marshal(ResultEvent{
		TestID:      res.TestID,
		StudentID:   res.StudentID,
		Score:       res.Score,
		Correct:     res.Correct,
		Total:       res.Total,
		SubmittedAt: res.SubmittedAt,
	})
	if err != nil {
		return
	}
	channel := config.CacheKey.TestResultsChannel(res.TestID)
	if err := s.rdb.Publish(ctx, channel, event).Err(); err != nil {
		log.Warn().Err(err).Str("test_id", res.TestID.String()).Msg("failed to publish result event")
	}
}

// GetResult returns a student's own result for a test.
func (s *AttemptService) GetResult(ctx context.Context, testID uuid.UUID, studentID int) (*model.Result, error) {
	res, err := s.resultRepo.GetByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// ListResults returns all results for a test with pagination, for the
// test's owner.
func (s *AttemptService) ListResults(ctx context.Context, testID uuid.UUID, page, perPage int) ([]repository.StudentResult, int, error) {
	return s.resultRepo.ListByTest(ctx, testID, page, perPage)
}

// ListExpired exposes the sweep query for the deadline worker.
func (s *AttemptService) ListExpired(ctx context.Context, grace time.Duration, limit int) ([]repository.ExpiredAttemptRow, error) {
	return s.attemptRepo.ListExpired(ctx, grace, limit)
}

// GradeAnswers scores an answer vector given in display index space against
// the canonical questions, using the attempt's stored permutations. A
// malformed question order or option permutation degrades to canonical
// order, mirroring what takers were actually shown in that case. Slots
// holding -1 or out-of-range values count as wrong.
func GradeAnswers(questions []model.Question, questionOrder []uuid.UUID, optionOrders map[string][]int, answers []int) int {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	display := make([]*model.Question, 0, len(questions))
	if validQuestionOrder(questionOrder, byID) {
		for _, id := range questionOrder {
			display = append(display, byID[id])
		}
	} else {
		for i := range questions {
			display = append(display, &questions[i])
		}
	}

	correct := 0
	for i, q := range display {
		if i >= len(answers) {
			break
		}
		a := answers[i]
		if a < 0 || a >= len(q.Options) {
			continue
		}
		original := a
		if perm := optionOrders[q.ID.String()]; validPermutation(perm, len(q.Options)) {
			original = perm[a]
		}
		if original == q.CorrectIndex {
			correct++
		}
	}
	return correct
}

func validQuestionOrder(order []uuid.UUID, byID map[uuid.UUID]*model.Question) bool {
	if len(order) != len(byID) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(order))
	for _, id := range order {
		if _, ok := byID[id]; !ok || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func validPermutation(perm []int, n int) bool {
	if len(perm) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range perm {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func shuffledQuestionOrder(questions []model.Question) []uuid.UUID {
	order := make([]uuid.UUID, len(questions))
	for i := range questions {
		order[i] = questions[i].ID
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

func shuffledOptionOrders(questions []model.Question) map[string][]int {
	orders := make(map[string][]int, len(questions))
	for i := range questions {
		perm := rand.Perm(len(questions[i].Options))
		orders[questions[i].ID.String()] = perm
	}
	return orders
}
