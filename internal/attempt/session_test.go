package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/rs/zerolog"
)

// fakeClock is a manually driven Clock. Tests advance it and call
// Session.tick directly; the channel returned by Tick never fires.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Tick(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

// fakeBackend is an in-memory Backend with the server's idempotency
// contract: one attempt per (test, student), one graded result.
type fakeBackend struct {
	mu          sync.Mutex
	payload     *model.TestPayload
	att         *model.Attempt
	startCalls  int
	submitCalls int
	graded      int
	submitErr   error // returned once per SubmitAttempt while set
	lastAnswers []int
}

func (b *fakeBackend) FetchTest(_ context.Context, _ uuid.UUID) (*model.TestPayload, error) {
	return b.payload, nil
}

func (b *fakeBackend) LatestAttempt(_ context.Context, _ uuid.UUID, _ int) (*model.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.att == nil {
		return nil, ErrNoAttempt
	}
	cp := *b.att
	return &cp, nil
}

func (b *fakeBackend) StartAttempt(_ context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	if b.att == nil {
		b.att = &model.Attempt{
			ID:        uuid.New(),
			TestID:    testID,
			StudentID: studentID,
			Status:    model.AttemptStatusInProgress,
			StartedAt: time.Now(),
		}
	}
	cp := *b.att
	return &cp, nil
}

func (b *fakeBackend) SubmitAttempt(_ context.Context, _ uuid.UUID, _ int, answers []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitCalls++
	if b.submitErr != nil {
		return b.submitErr
	}
	if b.att.Status == model.AttemptStatusSubmitted {
		return ErrAlreadySubmitted
	}
	b.att.Status = model.AttemptStatusSubmitted
	b.graded++
	b.lastAnswers = append([]int(nil), answers...)
	return nil
}

// recordingNotifier counts callbacks.
type recordingNotifier struct {
	mu           sync.Mutex
	resultsReady int
	celebrations int
	lockedIdx    []int
}

func (n *recordingNotifier) ResultsReady() {
	n.mu.Lock()
	n.resultsReady++
	n.mu.Unlock()
}

func (n *recordingNotifier) Celebrate() {
	n.mu.Lock()
	n.celebrations++
	n.mu.Unlock()
}

func (n *recordingNotifier) QuestionLocked(i int) {
	n.mu.Lock()
	n.lockedIdx = append(n.lockedIdx, i)
	n.mu.Unlock()
}

func makePayload(questions, spq, durationMinutes int, now time.Time) *model.TestPayload {
	p := &model.TestPayload{
		ID:                 uuid.New(),
		Title:              "sample",
		DurationMinutes:    durationMinutes,
		SecondsPerQuestion: &spq,
		Active:             true,
		StartDate:          now.Add(-time.Hour),
		EndDate:            now.Add(time.Hour),
	}
	for i := 0; i < questions; i++ {
		p.Questions = append(p.Questions, model.StudentQuestion{
			ID:      uuid.New(),
			Text:    "q",
			Options: []string{"A", "B", "C", "D"},
		})
	}
	return p
}

func newTestSession(t *testing.T, backend *fakeBackend, clock *fakeClock) (*Session, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	s := NewSession(Config{
		TestID:    backend.payload.ID,
		StudentID: 7,
		Backend:   backend,
		Clock:     clock,
		Notifier:  notifier,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s, notifier
}

// stepSeconds simulates n one-second ticks.
func stepSeconds(ctx context.Context, s *Session, clock *fakeClock, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		s.tick(ctx)
	}
}

func TestStartIsIdempotentClientSide(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(2, 30, 1, now)}
	s, _ := newTestSession(t, backend, clock)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if backend.startCalls != 1 {
		t.Fatalf("start calls = %d, want 1 (latch must stop the second)", backend.startCalls)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("status = %v, want in_progress", s.Status())
	}
}

func TestResumptionComputesRemainingFromStartedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(10, 60, 10, now)} // 600s total
	backend.att = &model.Attempt{
		ID:        uuid.New(),
		TestID:    backend.payload.ID,
		StudentID: 7,
		Status:    model.AttemptStatusInProgress,
		StartedAt: now.Add(-65 * time.Second),
	}
	s, _ := newTestSession(t, backend, clock)

	status, err := s.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if status != StatusInProgress {
		t.Fatalf("Resolve status = %v, want in_progress", status)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.WholeRemaining(); got != 535 {
		t.Fatalf("WholeRemaining = %d, want 535", got)
	}
}

func TestPerQuestionTimerSnapshotSurvivesNavigation(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(3, 30, 2, now)}
	s, _ := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stepSeconds(ctx, s, clock, 12)
	if got := s.QuestionRemaining(0); got != 18 {
		t.Fatalf("q0 remaining = %d, want 18", got)
	}

	if idx := s.Next(); idx != 1 {
		t.Fatalf("Next = %d, want 1", idx)
	}
	if got := s.QuestionRemaining(1); got != 30 {
		t.Fatalf("q1 first visit remaining = %d, want full 30", got)
	}
	stepSeconds(ctx, s, clock, 5)

	if idx := s.Previous(); idx != 0 {
		t.Fatalf("Previous = %d, want 0", idx)
	}
	if got := s.QuestionRemaining(0); got != 18 {
		t.Fatalf("q0 remaining after round trip = %d, want 18 (not reset)", got)
	}
	if got := s.QuestionRemaining(1); got != 25 {
		t.Fatalf("q1 snapshot = %d, want 25", got)
	}
}

func TestPaletteJumpResetsTargetTimer(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(3, 30, 2, now)}
	s, _ := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stepSeconds(ctx, s, clock, 12)
	if err := s.Jump(1); err != nil {
		t.Fatalf("Jump(1): %v", err)
	}
	if err := s.Jump(0); err != nil {
		t.Fatalf("Jump(0): %v", err)
	}
	if got := s.QuestionRemaining(0); got != 30 {
		t.Fatalf("q0 remaining after palette jump = %d, want full 30", got)
	}
}

func TestLockoutOnExpiryAutoAdvancesAndBlocksReturn(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(3, 3, 2, now)}
	s, notifier := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stepSeconds(ctx, s, clock, 3)

	if !s.Locked(0) {
		t.Fatal("q0 should be locked after its budget ran out")
	}
	if got := s.CurrentIndex(); got != 1 {
		t.Fatalf("current = %d, want auto-advance to 1", got)
	}
	if len(notifier.lockedIdx) != 1 || notifier.lockedIdx[0] != 0 {
		t.Fatalf("lock notifications = %v, want [0]", notifier.lockedIdx)
	}

	if idx := s.Previous(); idx != 1 {
		t.Fatalf("Previous moved into locked question, current = %d", idx)
	}
	if err := s.Jump(0); !errors.Is(err, ErrQuestionLocked) {
		t.Fatalf("Jump into locked = %v, want ErrQuestionLocked", err)
	}
	if err := s.SelectAnswer(0, 1); !errors.Is(err, ErrQuestionLocked) {
		t.Fatalf("SelectAnswer on locked = %v, want ErrQuestionLocked", err)
	}
}

func TestExplicitSubmitRequiresAllAnswered(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(2, 30, 1, now)}
	s, _ := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Submit(ctx); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Submit with blanks = %v, want ErrUnanswered", err)
	}

	if err := s.SelectAnswer(0, 2); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	s.Next()
	if err := s.SelectAnswer(1, 0); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := s.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if backend.graded != 1 {
		t.Fatalf("graded = %d, want 1", backend.graded)
	}
	// Display-index answers go over the wire untranslated.
	if backend.lastAnswers[0] != 2 || backend.lastAnswers[1] != 0 {
		t.Fatalf("submitted answers = %v, want [2 0]", backend.lastAnswers)
	}
}

func TestConcurrentSubmitsYieldOneResult(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(1, 30, 1, now)}
	s, notifier := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.SelectAnswer(0, 1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Submit(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if backend.graded != 1 {
		t.Fatalf("graded = %d, want exactly 1", backend.graded)
	}
	if notifier.celebrations != 1 {
		t.Fatalf("celebrations = %d, want exactly 1", notifier.celebrations)
	}
}

func TestTerminalStateIsImmutable(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(1, 30, 1, now)}
	s, notifier := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.SelectAnswer(0, 0); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := s.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	callsAfterFirst := backend.submitCalls

	// Re-triggering must not issue another network call, only navigate.
	if err := s.Submit(ctx); err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	s.Suspend(ctx)
	clock.Advance(time.Second)
	s.tick(ctx)

	if backend.submitCalls != callsAfterFirst {
		t.Fatalf("submit calls grew from %d to %d after terminal state", callsAfterFirst, backend.submitCalls)
	}
	if err := s.SelectAnswer(0, 1); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("SelectAnswer after submit = %v, want ErrAlreadySubmitted", err)
	}
	if notifier.resultsReady < 2 {
		t.Fatalf("resultsReady = %d, want repeat navigation", notifier.resultsReady)
	}
}

func TestBackupSubmitFiresAndSwallowsFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(2, 120, 4, now)}
	backend.submitErr = errors.New("network down")
	s, _ := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stepSeconds(ctx, s, clock, 30)

	if backend.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1 backup attempt", backend.submitCalls)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("status = %v, want still in_progress after swallowed failure", s.Status())
	}

	// Recovery: the next backup lands once the network is back.
	backend.submitErr = nil
	stepSeconds(ctx, s, clock, 30)
	if backend.graded != 1 {
		t.Fatalf("graded = %d, want 1 after backup recovery", backend.graded)
	}
}

func TestForcedSubmitNearDeadline(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	spq := 45
	payload := makePayload(2, spq, 1, now) // 60s whole-test
	backend := &fakeBackend{payload: payload}
	s, notifier := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 31 ticks put remaining at 29s, inside the 30s forced buffer.
	stepSeconds(ctx, s, clock, 31)

	if backend.graded != 1 {
		t.Fatalf("graded = %d, want forced submit to have fired", backend.graded)
	}
	if s.Status() != StatusSubmitted {
		t.Fatalf("status = %v, want submitted", s.Status())
	}
	if notifier.resultsReady == 0 {
		t.Fatal("forced submit must navigate to results")
	}
}

func TestForcedSubmitNavigatesEvenOnFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	payload := makePayload(2, 45, 1, now)
	backend := &fakeBackend{payload: payload}
	backend.submitErr = errors.New("network down")
	s, notifier := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stepSeconds(ctx, s, clock, 31)

	if notifier.resultsReady == 0 {
		t.Fatal("forced submit must navigate to results even when the call fails")
	}
}

func TestSuspendIsBestEffort(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(1, 30, 1, now)}
	s, _ := newTestSession(t, backend, clock)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.SelectAnswer(0, 3); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}

	s.Suspend(ctx)

	if backend.graded != 1 {
		t.Fatalf("graded = %d, want suspend to have submitted", backend.graded)
	}
}

func TestGateRejectsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)

	payload := makePayload(1, 30, 1, now)
	payload.EndDate = now.Add(-time.Minute)
	backend := &fakeBackend{payload: payload}
	s, _ := newTestSession(t, backend, clock)

	if _, err := s.Resolve(ctx); !errors.Is(err, ErrTestEnded) {
		t.Fatalf("Resolve on ended test = %v, want ErrTestEnded", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrTestEnded) {
		t.Fatalf("Start on ended test = %v, want ErrTestEnded", err)
	}

	payload.EndDate = now.Add(time.Hour)
	payload.StartDate = now.Add(30 * time.Minute)
	if err := s.Start(ctx); !errors.Is(err, ErrTestNotStarted) {
		t.Fatalf("Start before window = %v, want ErrTestNotStarted", err)
	}

	payload.StartDate = now.Add(-time.Hour)
	payload.Active = false
	if err := s.Start(ctx); !errors.Is(err, ErrTestInactive) {
		t.Fatalf("Start on inactive test = %v, want ErrTestInactive", err)
	}
}

func TestResolveRedirectsSubmittedAttempt(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := newFakeClock(now)
	backend := &fakeBackend{payload: makePayload(1, 30, 1, now)}
	backend.att = &model.Attempt{
		ID:        uuid.New(),
		Status:    model.AttemptStatusSubmitted,
		StartedAt: now.Add(-time.Hour),
	}
	s, _ := newTestSession(t, backend, clock)

	status, err := s.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if status != StatusSubmitted {
		t.Fatalf("status = %v, want submitted redirect", status)
	}
}
