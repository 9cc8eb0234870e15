package attempt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/rs/zerolog"
)

const (
	// Unanswered is the sentinel for an empty answer slot. The vector
	// always has one slot per display question; slots are never absent.
	Unanswered = -1

	// TickInterval is the resolution of both countdown layers.
	TickInterval = time.Second

	// BackupInterval is how often the periodic backup submit fires.
	BackupInterval = 30 * time.Second

	// BackupMinGap suppresses a backup submit that would land right on
	// the heels of another trigger. A courtesy debounce, not a
	// correctness mechanism; the server's idempotent submit is.
	BackupMinGap = 5 * time.Second

	// ForcedSubmitBuffer is how long before the whole-test deadline the
	// forced submit fires, insurance against tick delays in a
	// backgrounded process.
	ForcedSubmitBuffer = 30 * time.Second
)

// Status is the session's lifecycle state. Submitted is terminal.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusSubmitted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSubmitted:
		return "submitted"
	default:
		return "not_started"
	}
}

// Config wires a Session to its collaborators.
type Config struct {
	TestID    uuid.UUID
	StudentID int
	Backend   Backend
	Clock     Clock    // nil means the system clock
	Notifier  Notifier // nil means no callbacks
	Logger    zerolog.Logger
}

// Session is one student's mounted test-taking session: display ordering,
// the answer vector, both countdown layers, and the four submit triggers
// funneling into one idempotent submission.
//
// All state lives behind one mutex. There is exactly one tick source per
// session, guarded by a start latch; repeated Start calls never spawn a
// second one.
type Session struct {
	backend  Backend
	clock    Clock
	notifier Notifier
	log      zerolog.Logger

	testID    uuid.UUID
	studentID int

	mu      sync.Mutex
	payload *model.TestPayload
	att     *model.Attempt

	questions []model.StudentQuestion // display order
	answers   []int                   // display option index or Unanswered
	flagged   map[int]bool
	locked    map[int]bool
	current   int

	budget         int   // seconds per question
	perRemaining   []int // seconds left per display question
	wholeSeed      int   // seconds for the whole test
	wholeRemaining int

	status       Status
	started      bool // tick-source latch
	forcedFired  bool
	deadlineHit  bool
	celebrated   bool
	lastBackupAt time.Time
	lastSubmitAt time.Time

	done     chan struct{}
	stopOnce sync.Once
	stopTick func()
}

// NewSession creates an unstarted session. Call Resolve to learn whether
// to show an intro screen, then Start.
func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	return &Session{
		backend:   cfg.Backend,
		clock:     cfg.Clock,
		notifier:  cfg.Notifier,
		log:       cfg.Logger.With().Str("component", "attempt_session").Logger(),
		testID:    cfg.TestID,
		studentID: cfg.StudentID,
		flagged:   make(map[int]bool),
		locked:    make(map[int]bool),
		done:      make(chan struct{}),
	}
}

// Resolve fetches the test and the latest attempt and reports which screen
// the shell should show: intro (StatusNotStarted), the question view
// (StatusInProgress), or results (StatusSubmitted). Gate violations come
// back as ErrTestInactive / ErrTestNotStarted / ErrTestEnded.
func (s *Session) Resolve(ctx context.Context) (Status, error) {
	payload, err := s.backend.FetchTest(ctx, s.testID)
	if err != nil {
		return StatusNotStarted, err
	}
	if err := gate(payload, s.clock.Now()); err != nil {
		return StatusNotStarted, err
	}

	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()

	att, err := s.backend.LatestAttempt(ctx, s.testID, s.studentID)
	if err != nil {
		if errors.Is(err, ErrNoAttempt) {
			return StatusNotStarted, nil
		}
		return StatusNotStarted, err
	}
	if att.Status == model.AttemptStatusSubmitted {
		return StatusSubmitted, nil
	}
	return StatusInProgress, nil
}

// Start creates or resumes the attempt and begins ticking. Idempotent on
// the client side too: a second call while running is a no-op. When the
// attempt turns out to be already submitted, the session lands directly in
// StatusSubmitted and ResultsReady fires; that is not an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	payload := s.payload
	s.mu.Unlock()

	if payload == nil {
		var err error
		payload, err = s.backend.FetchTest(ctx, s.testID)
		if err != nil {
			return err
		}
	}
	if err := gate(payload, s.clock.Now()); err != nil {
		return err
	}

	att, err := s.backend.StartAttempt(ctx, s.testID, s.studentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.payload = payload
	s.att = att
	s.questions = DisplayQuestions(payload, att)
	s.answers = make([]int, len(s.questions))
	for i := range s.answers {
		s.answers[i] = Unanswered
	}

	s.budget = questionBudget(payload)
	s.perRemaining = make([]int, len(s.questions))
	for i := range s.perRemaining {
		s.perRemaining[i] = s.budget
	}

	s.wholeSeed = payload.DurationMinutes * 60
	s.wholeRemaining = s.remainingAt(s.clock.Now())
	s.current = 0

	if att.Status == model.AttemptStatusSubmitted {
		s.status = StatusSubmitted
		s.mu.Unlock()
		s.notifier.ResultsReady()
		return nil
	}
	s.status = StatusInProgress
	s.lastBackupAt = s.clock.Now()
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// run is the single tick loop for the session.
func (s *Session) run(ctx context.Context) {
	ch, stop := s.clock.Tick(TickInterval)
	s.mu.Lock()
	s.stopTick = stop
	s.mu.Unlock()

	for {
		select {
		case <-s.done:
			stop()
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.tick(ctx)
		}
	}
}

// tick advances both countdown layers once and evaluates the background
// submit triggers. A tick after submission is a no-op.
func (s *Session) tick(ctx context.Context) {
	var (
		fireBackup   bool
		fireForced   bool
		fireDeadline bool
	)

	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()

	// The whole-test layer is recomputed from the authoritative start
	// time every tick, never decremented, so delayed or missed ticks
	// cannot stretch the deadline.
	s.wholeRemaining = s.remainingAt(now)

	// The per-question layer decrements whichever question holds focus.
	cur := s.current
	if !s.locked[cur] && s.perRemaining[cur] > 0 {
		s.perRemaining[cur]--
		if s.perRemaining[cur] == 0 {
			s.lockAndAdvanceLocked(cur)
		}
	}

	if s.wholeRemaining <= 0 && !s.deadlineHit {
		s.deadlineHit = true
		fireDeadline = true
	} else if s.wholeRemaining <= int(ForcedSubmitBuffer/time.Second) && !s.forcedFired {
		s.forcedFired = true
		fireForced = true
	}
	if now.Sub(s.lastBackupAt) >= BackupInterval {
		s.lastBackupAt = now
		fireBackup = true
	}
	s.mu.Unlock()

	switch {
	case fireDeadline:
		_ = s.submit(ctx, triggerDeadline)
		s.stop()
	case fireForced:
		_ = s.submit(ctx, triggerForced)
	case fireBackup:
		_ = s.submit(ctx, triggerBackup)
	}
}

// remainingAt computes whole-test seconds left from the server start time.
func (s *Session) remainingAt(now time.Time) int {
	elapsed := int(now.Sub(s.att.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := s.wholeSeed - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// lockAndAdvanceLocked marks a question as timed out and moves focus to
// the nearest later unlocked question, falling back to an earlier one.
// Caller holds the lock.
func (s *Session) lockAndAdvanceLocked(idx int) {
	s.locked[idx] = true
	s.notifier.QuestionLocked(idx)

	for i := idx + 1; i < len(s.questions); i++ {
		if !s.locked[i] {
			s.current = i
			return
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if !s.locked[i] {
			s.current = i
			return
		}
	}
	// Every question is locked; focus stays where it was.
}

// SelectAnswer records a display-index option choice for a display
// question. Unanswered clears the slot. Locked questions reject changes.
func (s *Session) SelectAnswer(questionIdx, optionIdx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusSubmitted {
		return ErrAlreadySubmitted
	}
	if s.status != StatusInProgress {
		return ErrNotRunning
	}
	if questionIdx < 0 || questionIdx >= len(s.questions) {
		return errors.New("question index out of range")
	}
	if s.locked[questionIdx] {
		return ErrQuestionLocked
	}
	if optionIdx != Unanswered && (optionIdx < 0 || optionIdx >= len(s.questions[questionIdx].Options)) {
		return errors.New("option index out of range")
	}
	s.answers[questionIdx] = optionIdx
	return nil
}

// ToggleFlag flips the review flag on a question.
func (s *Session) ToggleFlag(questionIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionIdx < 0 || questionIdx >= len(s.questions) {
		return
	}
	s.flagged[questionIdx] = !s.flagged[questionIdx]
}

// Next moves focus to the nearest later unlocked question, preserving the
// current question's timer snapshot. Returns the new focus index; the
// index is unchanged when no later unlocked question exists.
func (s *Session) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.current + 1; i < len(s.questions); i++ {
		if !s.locked[i] {
			s.current = i
			break
		}
	}
	return s.current
}

// Previous moves focus to the nearest earlier unlocked question,
// preserving timer snapshots on both sides.
func (s *Session) Previous() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.current - 1; i >= 0; i-- {
		if !s.locked[i] {
			s.current = i
			break
		}
	}
	return s.current
}

// Jump is a palette-initiated move. Unlike Next/Previous it resets the
// target question's timer to a full budget. The asymmetry is the observed
// product behavior and is kept deliberately; see DESIGN.md.
func (s *Session) Jump(questionIdx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusSubmitted {
		return ErrAlreadySubmitted
	}
	if questionIdx < 0 || questionIdx >= len(s.questions) {
		return errors.New("question index out of range")
	}
	if s.locked[questionIdx] {
		return ErrQuestionLocked
	}
	s.perRemaining[questionIdx] = s.budget
	s.current = questionIdx
	return nil
}

// Submit is the explicit trigger. It refuses while unanswered slots
// remain; on an already-submitted session it just re-fires ResultsReady.
// This is the only path that surfaces submission errors.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusSubmitted {
		s.mu.Unlock()
		s.notifier.ResultsReady()
		return nil
	}
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return ErrNotRunning
	}
	for i, a := range s.answers {
		if a == Unanswered && !s.locked[i] {
			s.mu.Unlock()
			return ErrUnanswered
		}
	}
	s.mu.Unlock()

	return s.submit(ctx, triggerExplicit)
}

// Suspend is the visibility/unload trigger: a best-effort submit that
// never reports failure, because the page may be going away regardless.
func (s *Session) Suspend(ctx context.Context) {
	s.mu.Lock()
	running := s.status == StatusInProgress
	s.mu.Unlock()
	if !running {
		return
	}
	_ = s.submit(ctx, triggerSuspend)
}

// Close tears the session down: the tick source stops and no further
// triggers fire. Idempotent.
func (s *Session) Close() {
	s.stop()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	if s.stopTick != nil {
		s.stopTick()
	}
	s.mu.Unlock()
}

// ─── Read-only accessors for the rendering shell ───────────────────

// Status returns the session lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentIndex returns the focused display question index.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// WholeRemaining returns whole-test seconds left.
func (s *Session) WholeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wholeRemaining
}

// QuestionRemaining returns the per-question seconds left for a display
// question, whether or not it currently holds focus.
func (s *Session) QuestionRemaining(questionIdx int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionIdx < 0 || questionIdx >= len(s.perRemaining) {
		return 0
	}
	return s.perRemaining[questionIdx]
}

// Locked reports whether a question has timed out.
func (s *Session) Locked(questionIdx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked[questionIdx]
}

// Flagged reports whether a question is flagged for review.
func (s *Session) Flagged(questionIdx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagged[questionIdx]
}

// Questions returns the display-ordered questions.
func (s *Session) Questions() []model.StudentQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StudentQuestion, len(s.questions))
	copy(out, s.questions)
	return out
}

// Options returns the display-ordered option strings for a question.
func (s *Session) Options(questionIdx int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionIdx < 0 || questionIdx >= len(s.questions) {
		return nil
	}
	return DisplayOptions(&s.questions[questionIdx], s.att)
}

// Answers returns a copy of the answer vector in display index space.
func (s *Session) Answers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.answers))
	copy(out, s.answers)
	return out
}

// questionBudget picks the per-question seconds. The stored value wins;
// deriving from duration_minutes overestimates because authoring rounds
// the total up to a whole minute.
func questionBudget(payload *model.TestPayload) int {
	if payload.SecondsPerQuestion != nil && *payload.SecondsPerQuestion > 0 {
		return *payload.SecondsPerQuestion
	}
	n := len(payload.Questions)
	if n == 0 {
		return 0
	}
	return payload.DurationMinutes * 60 / n
}

// gate validates the test's availability window.
func gate(payload *model.TestPayload, now time.Time) error {
	if !payload.Active {
		return ErrTestInactive
	}
	if now.Before(payload.StartDate) {
		return ErrTestNotStarted
	}
	if now.After(payload.EndDate) {
		return ErrTestEnded
	}
	return nil
}
