package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

func gradingFixture() []model.Question {
	return []model.Question{
		{ID: uuid.New(), Options: []string{"a", "b", "c"}, CorrectIndex: 2},
		{ID: uuid.New(), Options: []string{"x", "y"}, CorrectIndex: 0},
		{ID: uuid.New(), Options: []string{"p", "q", "r", "s"}, CorrectIndex: 1},
	}
}

func TestGradeAnswersCanonicalOrder(t *testing.T) {
	qs := gradingFixture()

	// No permutations stored: answers are in canonical space.
	got := GradeAnswers(qs, nil, nil, []int{2, 0, 1})
	if got != 3 {
		t.Fatalf("correct = %d, want 3", got)
	}

	got = GradeAnswers(qs, nil, nil, []int{0, 0, 3})
	if got != 1 {
		t.Fatalf("correct = %d, want 1", got)
	}
}

func TestGradeAnswersAppliesPermutations(t *testing.T) {
	qs := gradingFixture()

	// Display order reverses the questions; each answer vector slot must be
	// mapped through both permutations before comparison.
	order := []uuid.UUID{qs[2].ID, qs[1].ID, qs[0].ID}
	optionOrders := map[string][]int{
		// display index -> original index
		qs[2].ID.String(): {3, 1, 0, 2}, // correct original 1 shows at display 1
		qs[0].ID.String(): {2, 0, 1},    // correct original 2 shows at display 0
	}

	got := GradeAnswers(qs, order, optionOrders, []int{1, 0, 0})
	if got != 3 {
		t.Fatalf("correct = %d, want 3", got)
	}
}

func TestGradeAnswersSkipsBlankAndOutOfRange(t *testing.T) {
	qs := gradingFixture()

	got := GradeAnswers(qs, nil, nil, []int{-1, 0, 9})
	if got != 1 {
		t.Fatalf("correct = %d, want 1", got)
	}
}

func TestGradeAnswersMalformedPermutationsDegradeToCanonical(t *testing.T) {
	qs := gradingFixture()

	// Wrong-length question order and a duplicate option permutation: both
	// must fall back to canonical, matching what the taker was shown.
	order := []uuid.UUID{qs[0].ID}
	optionOrders := map[string][]int{
		qs[0].ID.String(): {0, 0, 1},
	}

	got := GradeAnswers(qs, order, optionOrders, []int{2, 0, 1})
	if got != 3 {
		t.Fatalf("correct = %d, want 3", got)
	}
}

func TestGradeAnswersShortVector(t *testing.T) {
	qs := gradingFixture()

	// A truncated vector grades what is present and treats the rest as wrong.
	got := GradeAnswers(qs, nil, nil, []int{2})
	if got != 1 {
		t.Fatalf("correct = %d, want 1", got)
	}
}

func TestShuffledOrdersAreValidPermutations(t *testing.T) {
	qs := gradingFixture()

	order := shuffledQuestionOrder(qs)
	byID := make(map[uuid.UUID]*model.Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}
	if !validQuestionOrder(order, byID) {
		t.Fatalf("shuffled question order invalid: %v", order)
	}

	orders := shuffledOptionOrders(qs)
	for i := range qs {
		perm := orders[qs[i].ID.String()]
		if !validPermutation(perm, len(qs[i].Options)) {
			t.Fatalf("option permutation for question %d invalid: %v", i, perm)
		}
	}
}

func TestParseAnswerHash(t *testing.T) {
	raw := map[string]string{
		"0":    "2",
		"3":    "-1",
		"junk": "1",
		"4":    "abc",
	}
	got := parseAnswerHash(raw)
	if len(got) != 2 || got[0] != 2 || got[3] != -1 {
		t.Fatalf("parseAnswerHash = %v", got)
	}
}

func TestFillAnswerVectorDefaultsToBlanks(t *testing.T) {
	// The vanished-client path: whatever the autosave channel captured is
	// graded, every untouched slot stays -1, stray indices are dropped.
	saved := map[int]int{1: 3, 0: 0, 7: 2, -1: 1}
	got := fillAnswerVector(4, saved)
	want := []int{0, 3, -1, -1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fillAnswerVector = %v, want %v", got, want)
		}
	}

	empty := fillAnswerVector(3, nil)
	for i, a := range empty {
		if a != -1 {
			t.Fatalf("slot %d = %d, want -1", i, a)
		}
	}
}

func TestGateTestWindow(t *testing.T) {
	now := time.Now()
	base := &model.Test{
		Active:    true,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
	}

	if err := gateTest(base, now); err != nil {
		t.Fatalf("open window rejected: %v", err)
	}

	inactive := *base
	inactive.Active = false
	if err := gateTest(&inactive, now); err != ErrTestInactive {
		t.Fatalf("err = %v, want ErrTestInactive", err)
	}

	early := *base
	early.StartDate = now.Add(time.Minute)
	if err := gateTest(&early, now); err != ErrTestNotStarted {
		t.Fatalf("err = %v, want ErrTestNotStarted", err)
	}

	late := *base
	late.EndDate = now.Add(-time.Minute)
	if err := gateTest(&late, now); err != ErrTestEnded {
		t.Fatalf("err = %v, want ErrTestEnded", err)
	}
}

func TestDurationFromQuestionsRoundsUp(t *testing.T) {
	cases := []struct {
		count, spq, want int
	}{
		{10, 60, 10},
		{10, 30, 5},
		{7, 45, 6},  // 315s -> 6 min
		{1, 5, 1},   // 5s still bills a whole minute
		{90, 40, 60},
	}
	for _, tc := range cases {
		if got := durationFromQuestions(tc.count, tc.spq); got != tc.want {
			t.Errorf("durationFromQuestions(%d, %d) = %d, want %d", tc.count, tc.spq, got, tc.want)
		}
	}
}
