package attempt

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

func TestDisplayOptionsAppliesPermutation(t *testing.T) {
	q := model.StudentQuestion{
		ID:      uuid.New(),
		Text:    "pick one",
		Options: []string{"A", "B", "C", "D"},
	}
	att := &model.Attempt{
		OptionOrders: map[string][]int{
			q.ID.String(): {2, 0, 3, 1},
		},
	}

	got := DisplayOptions(&q, att)
	want := []string{"C", "A", "D", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DisplayOptions = %v, want %v", got, want)
	}
}

func TestDisplayOptionsMalformedPermutationFallsBack(t *testing.T) {
	q := model.StudentQuestion{
		ID:      uuid.New(),
		Options: []string{"A", "B", "C"},
	}

	cases := map[string][]int{
		"wrong length": {0, 1},
		"out of range": {0, 1, 5},
		"duplicate":    {0, 0, 1},
	}
	for name, perm := range cases {
		att := &model.Attempt{OptionOrders: map[string][]int{q.ID.String(): perm}}
		got := DisplayOptions(&q, att)
		if !reflect.DeepEqual(got, q.Options) {
			t.Errorf("%s: got %v, want canonical %v", name, got, q.Options)
		}
	}
}

func TestDisplayOptionsNoPermutation(t *testing.T) {
	q := model.StudentQuestion{ID: uuid.New(), Options: []string{"A", "B"}}
	got := DisplayOptions(&q, &model.Attempt{})
	if !reflect.DeepEqual(got, q.Options) {
		t.Fatalf("got %v, want canonical %v", got, q.Options)
	}
}

func TestDisplayQuestionsAppliesOrder(t *testing.T) {
	payload := &model.TestPayload{
		Questions: []model.StudentQuestion{
			{ID: uuid.New(), Text: "q0"},
			{ID: uuid.New(), Text: "q1"},
			{ID: uuid.New(), Text: "q2"},
		},
	}
	att := &model.Attempt{
		QuestionOrder: []uuid.UUID{
			payload.Questions[2].ID,
			payload.Questions[0].ID,
			payload.Questions[1].ID,
		},
	}

	got := DisplayQuestions(payload, att)
	if got[0].Text != "q2" || got[1].Text != "q0" || got[2].Text != "q1" {
		t.Fatalf("unexpected order: %s %s %s", got[0].Text, got[1].Text, got[2].Text)
	}
}

func TestDisplayQuestionsMalformedOrderFallsBack(t *testing.T) {
	payload := &model.TestPayload{
		Questions: []model.StudentQuestion{
			{ID: uuid.New(), Text: "q0"},
			{ID: uuid.New(), Text: "q1"},
		},
	}

	// Wrong length.
	att := &model.Attempt{QuestionOrder: []uuid.UUID{payload.Questions[0].ID}}
	got := DisplayQuestions(payload, att)
	if got[0].Text != "q0" || got[1].Text != "q1" {
		t.Fatalf("wrong length: expected canonical order, got %s %s", got[0].Text, got[1].Text)
	}

	// Unknown ID.
	att = &model.Attempt{QuestionOrder: []uuid.UUID{uuid.New(), uuid.New()}}
	got = DisplayQuestions(payload, att)
	if got[0].Text != "q0" || got[1].Text != "q1" {
		t.Fatalf("unknown id: expected canonical order, got %s %s", got[0].Text, got[1].Text)
	}

	// Duplicate ID.
	att = &model.Attempt{QuestionOrder: []uuid.UUID{payload.Questions[0].ID, payload.Questions[0].ID}}
	got = DisplayQuestions(payload, att)
	if got[0].Text != "q0" || got[1].Text != "q1" {
		t.Fatalf("duplicate id: expected canonical order, got %s %s", got[0].Text, got[1].Text)
	}
}
