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

// AuthHandler handles registration, login, and the one-time role choice.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func userJSON(u *model.User) gin.H {
	return gin.H{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
		"role":  u.Role,
	}
}

// Register godoc
// POST /api/v1/auth/register
// Creates an account with no role. The role is chosen after first login.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			response.Fail(c, http.StatusConflict, response.ErrEmailTaken)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": userJSON(user)})
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password and returns a JWT. Students with an active
// session elsewhere are rejected until that session expires or is reset.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		case errors.Is(err, service.ErrSessionAlreadyActive):
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  userJSON(user),
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the authenticated account's profile from its claims.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":   claims.UserID,
			"role": claims.Role,
		},
	})
}

// SetRole godoc
// POST /api/v1/auth/role
// Records the account's one-time role choice. A second call fails.
func (h *AuthHandler) SetRole(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SetRoleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, user, err := h.authService.SetRole(c.Request.Context(), claims.UserID, model.Role(req.Role))
	if err != nil {
		if errors.Is(err, service.ErrRoleAlreadySet) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// The old token carries the unset role; the fresh one lets the client
	// proceed without logging in again.
	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  userJSON(user),
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Releases the student's single-device session.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
