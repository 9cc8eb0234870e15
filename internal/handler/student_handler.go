package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quizmasterhq/quizmaster/internal/middleware"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/response"
	"github.com/quizmasterhq/quizmaster/internal/service"
	"github.com/quizmasterhq/quizmaster/internal/validator"
)

// StudentHandler handles the student-side test-taking endpoints.
type StudentHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(testService *service.TestService, attemptService *service.AttemptService) *StudentHandler {
	return &StudentHandler{testService: testService, attemptService: attemptService}
}

// failAttemptError maps attempt and gate errors to API error responses.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
	case errors.Is(err, service.ErrTestInactive):
		response.Fail(c, http.StatusForbidden, response.ErrTestInactive)
	case errors.Is(err, service.ErrTestNotStarted):
		response.Fail(c, http.StatusForbidden, response.ErrTestNotStarted)
	case errors.Is(err, service.ErrTestEnded):
		response.Fail(c, http.StatusForbidden, response.ErrTestEnded)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAnswerCountMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrAnswerCountMismatch)
	case errors.Is(err, service.ErrResultNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrResultNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetLobby godoc
// GET /api/v1/student/tests
// Lists active tests with the student's attempt status overlaid.
func (h *StudentHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)

	lobby, err := h.attemptService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tests": lobby})
}

// GetTestPayload godoc
// GET /api/v1/student/tests/:test_id
// Returns the answer-stripped test payload, served from cache.
func (h *StudentHandler) GetTestPayload(c *gin.Context) {
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	payload, err := h.testService.GetStudentPayload(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
		return
	}
	if !payload.Active {
		response.Fail(c, http.StatusForbidden, response.ErrTestInactive)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": payload})
}

// StartAttempt godoc
// POST /api/v1/student/tests/:test_id/attempt
// Starts the student's attempt, or returns the existing one unchanged.
// Safe to call on every mount of the test page.
func (h *StudentHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetAttempt godoc
// GET /api/v1/student/tests/:test_id/attempt
// Returns the student's attempt for this test, if any.
func (h *StudentHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Latest(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetAttemptState godoc
// GET /api/v1/student/tests/:test_id/attempt/state
// Returns the resumption snapshot: remaining seconds plus autosaved answers.
func (h *StudentHandler) GetAttemptState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// SubmitAttempt godoc
// POST /api/v1/student/tests/:test_id/attempt/submit
// The single submission funnel. Idempotent: a repeat call reports
// already_submitted with the recorded score instead of failing.
func (h *StudentHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.attemptService.Submit(c.Request.Context(), testID, claims.UserID, req.Answers)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// GetResult godoc
// GET /api/v1/student/tests/:test_id/result
func (h *StudentHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}
