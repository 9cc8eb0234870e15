package attempt

import (
	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/model"
)

// DisplayQuestions produces the question list in the attempt's display
// order. A missing or malformed permutation (wrong length, unknown or
// duplicate IDs) degrades to canonical order; it must never fail the view.
// Pure function of test + attempt, so recomputing on every mount is
// deterministic.
func DisplayQuestions(payload *model.TestPayload, att *model.Attempt) []model.StudentQuestion {
	byID := make(map[uuid.UUID]*model.StudentQuestion, len(payload.Questions))
	for i := range payload.Questions {
		byID[payload.Questions[i].ID] = &payload.Questions[i]
	}

	if att == nil || !isQuestionPermutation(att.QuestionOrder, byID) {
		out := make([]model.StudentQuestion, len(payload.Questions))
		copy(out, payload.Questions)
		return out
	}

	out := make([]model.StudentQuestion, 0, len(att.QuestionOrder))
	for _, id := range att.QuestionOrder {
		out = append(out, *byID[id])
	}
	return out
}

// DisplayOptions applies the attempt's option permutation for one question:
// display[i] = original[perm[i]]. A missing or malformed permutation
// returns canonical order unmodified.
func DisplayOptions(q *model.StudentQuestion, att *model.Attempt) []string {
	out := make([]string, len(q.Options))
	copy(out, q.Options)

	if att == nil {
		return out
	}
	perm, ok := att.OptionOrders[q.ID.String()]
	if !ok || !isIndexPermutation(perm, len(q.Options)) {
		return out
	}

	for i, orig := range perm {
		out[i] = q.Options[orig]
	}
	return out
}

func isQuestionPermutation(order []uuid.UUID, byID map[uuid.UUID]*model.StudentQuestion) bool {
	if len(order) == 0 || len(order) != len(byID) {
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

func isIndexPermutation(perm []int, n int) bool {
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
