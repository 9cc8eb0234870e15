package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrRoleRequired       ErrCode = "ROLE_REQUIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Test-specific ─────────────────────────────────────────────────
	ErrTestNotFound   ErrCode = "TEST_NOT_FOUND"
	ErrTestInactive   ErrCode = "TEST_INACTIVE"
	ErrTestNotStarted ErrCode = "TEST_NOT_STARTED"
	ErrTestEnded      ErrCode = "TEST_ENDED"
	ErrNotTestOwner   ErrCode = "NOT_TEST_OWNER"
	ErrNoQuestions    ErrCode = "NO_QUESTIONS"
	ErrBadAnswerIndex ErrCode = "BAD_ANSWER_INDEX"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAttemptNotFound     ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAlreadySubmitted    ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrAnswerCountMismatch ErrCode = "ANSWER_COUNT_MISMATCH"
	ErrResultNotFound      ErrCode = "RESULT_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrRoleRequired:
		return "Please choose a role (teacher or student) to continue."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Test-specific ─────────────────────────────────────────────────
	case ErrTestNotFound:
		return "This test could not be found."
	case ErrTestInactive:
		return "This test is not currently active."
	case ErrTestNotStarted:
		return "This test has not started yet."
	case ErrTestEnded:
		return "This test has ended."
	case ErrNotTestOwner:
		return "You are not the owner of this test."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrBadAnswerIndex:
		return "The correct answer index is out of range for its options."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "No attempt exists for this test."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrAnswerCountMismatch:
		return "The answer vector does not match the number of questions."
	case ErrResultNotFound:
		return "No result exists for this test."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
