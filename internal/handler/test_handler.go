package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizmasterhq/quizmaster/internal/middleware"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/response"
	"github.com/quizmasterhq/quizmaster/internal/service"
	"github.com/quizmasterhq/quizmaster/internal/validator"
)

// TestHandler handles teacher-side test management endpoints.
type TestHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService, attemptService *service.AttemptService) *TestHandler {
	return &TestHandler{testService: testService, attemptService: attemptService}
}

func parseTestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// failTestError maps service-layer test errors to API error responses.
func failTestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
	case errors.Is(err, service.ErrNotTestOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotTestOwner)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrBadAnswerIndex):
		response.Fail(c, http.StatusBadRequest, response.ErrBadAnswerIndex)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// CreateTest godoc
// POST /api/v1/teacher/tests
func (h *TestHandler) CreateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// ListTests godoc
// GET /api/v1/teacher/tests
func (h *TestHandler) ListTests(c *gin.Context) {
	claims := middleware.GetClaims(c)
	page, perPage := parsePagination(c)

	tests, total, err := h.testService.ListByOwner(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// GetTest godoc
// GET /api/v1/teacher/tests/:test_id
func (h *TestHandler) GetTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	test, err := h.testService.GetOwned(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// UpdateTest godoc
// PUT /api/v1/teacher/tests/:test_id
func (h *TestHandler) UpdateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Update(c.Request.Context(), testID, claims.UserID, &req)
	if err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// SetActive godoc
// POST /api/v1/teacher/tests/:test_id/active
// Body: {"active": true|false}. Activating requires at least one question.
func (h *TestHandler) SetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.SetActive(c.Request.Context(), testID, claims.UserID, *req.Active)
	if err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// DeleteTest godoc
// DELETE /api/v1/teacher/tests/:test_id
func (h *TestHandler) DeleteTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	if err := h.testService.Delete(c.Request.Context(), testID, claims.UserID); err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetQuestions godoc
// GET /api/v1/teacher/tests/:test_id/questions
// Returns questions with correct answers, owner only.
func (h *TestHandler) GetQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	questions, err := h.testService.GetQuestions(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ReplaceQuestions godoc
// PUT /api/v1/teacher/tests/:test_id/questions
// Replaces the full question set and recomputes the test duration.
func (h *TestHandler) ReplaceQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.ReplaceQuestions(c.Request.Context(), testID, claims.UserID, &req)
	if err != nil {
		failTestError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// ListResults godoc
// GET /api/v1/teacher/tests/:test_id/results
func (h *TestHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := parseTestID(c)
	if !ok {
		return
	}
	page, perPage := parsePagination(c)

	if _, err := h.testService.GetOwned(c.Request.Context(), testID, claims.UserID); err != nil {
		failTestError(c, err)
		return
	}

	results, total, err := h.attemptService.ListResults(c.Request.Context(), testID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}
