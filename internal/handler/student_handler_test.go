package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/quizmasterhq/quizmaster/internal/response"
	"github.com/quizmasterhq/quizmaster/internal/service"
)

func attemptErrorResponse(t *testing.T, err error) (int, response.ErrCode) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	failAttemptError(c, err)

	var body struct {
		Error struct {
			Code response.ErrCode `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w.Code, body.Error.Code
}

func TestAttemptErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		// A test that does not exist is not-found, never a gate violation.
		{service.ErrTestNotFound, http.StatusNotFound, response.ErrTestNotFound},
		{service.ErrTestInactive, http.StatusForbidden, response.ErrTestInactive},
		{service.ErrTestNotStarted, http.StatusForbidden, response.ErrTestNotStarted},
		{service.ErrTestEnded, http.StatusForbidden, response.ErrTestEnded},
		{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
		{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{service.ErrAnswerCountMismatch, http.StatusBadRequest, response.ErrAnswerCountMismatch},
		{service.ErrResultNotFound, http.StatusNotFound, response.ErrResultNotFound},
	}
	for _, tc := range cases {
		status, code := attemptErrorResponse(t, tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("%v -> %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}
