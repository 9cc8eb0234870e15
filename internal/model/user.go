package model

import "time"

// Role is the user's chosen role. It is empty until the user completes
// onboarding by picking teacher or student.
type Role string

const (
	RoleUnset   Role = ""
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a settable role value.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// User represents an account in either role.
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest is the payload for creating a new account.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SetRoleRequest is the payload for choosing a role during onboarding.
type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=teacher student"`
}
