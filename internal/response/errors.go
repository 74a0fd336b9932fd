package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session tokens ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrWrongAttempt  ErrCode = "WRONG_ATTEMPT"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// ─── Admission policy ──────────────────────────────────────────────
	ErrInvalidAccessCode   ErrCode = "INVALID_ACCESS_CODE"
	ErrExamNotOpen         ErrCode = "EXAM_NOT_OPEN"
	ErrExamClosed          ErrCode = "EXAM_CLOSED"
	ErrAttemptLimitReached ErrCode = "ATTEMPT_LIMIT_REACHED"

	// ─── Session state ─────────────────────────────────────────────────
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrAttemptExpired   ErrCode = "ATTEMPT_EXPIRED"
	ErrNotStarted       ErrCode = "NOT_STARTED"
	ErrInvalidEventType ErrCode = "INVALID_EVENT_TYPE"

	// ─── Rate limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "A session token is required."
	case ErrTokenInvalid:
		return "The session token is not valid."
	case ErrTokenExpired:
		return "The session token has expired."
	case ErrWrongAttempt:
		return "The session token does not belong to this attempt."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrAttemptNotFound:
		return "Attempt not found."

	case ErrInvalidAccessCode:
		return "The exam access code is incorrect."
	case ErrExamNotOpen:
		return "This exam has not opened yet."
	case ErrExamClosed:
		return "This exam is past its scheduled window."
	case ErrAttemptLimitReached:
		return "The maximum number of attempts for this exam has been reached."

	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrAttemptExpired:
		return "The exam time for this attempt is over."
	case ErrNotStarted:
		return "This attempt has not been started."
	case ErrInvalidEventType:
		return "Unknown proctoring event type."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
