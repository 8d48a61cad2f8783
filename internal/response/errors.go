package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Session token ─────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidQuery   ErrCode = "INVALID_QUERY"

	// ─── Interview ─────────────────────────────────────────────────────
	ErrInterviewNotFound  ErrCode = "INTERVIEW_NOT_FOUND"
	ErrInterviewClosed    ErrCode = "INTERVIEW_CLOSED"
	ErrQuestionMismatch   ErrCode = "QUESTION_COUNT_MISMATCH"
	ErrIntegrityNotFound  ErrCode = "INTEGRITY_NOT_FOUND"
	ErrSessionBusy        ErrCode = "SESSION_ALREADY_STREAMING"
	ErrCameraNotGranted   ErrCode = "CAMERA_NOT_GRANTED"
	ErrUnknownAction      ErrCode = "UNKNOWN_ACTION"
	ErrFrameUndecodable   ErrCode = "FRAME_UNDECODABLE"
	ErrRateLimitExceeded  ErrCode = "RATE_LIMIT_EXCEEDED"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrTokenRequired: "A session token is required.",
	ErrTokenInvalid:  "The session token is invalid or expired.",
	ErrForbidden:     "The session token does not grant access to this interview.",

	ErrValidation:     "Validation failed. Please check your input.",
	ErrInvalidID:      "Invalid ID format.",
	ErrInvalidPayload: "Invalid request payload.",
	ErrInvalidQuery:   "Invalid query parameters.",

	ErrInterviewNotFound:  "Interview not found.",
	ErrInterviewClosed:    "This interview has already ended.",
	ErrQuestionMismatch:   "The number of questions does not match the requested count.",
	ErrIntegrityNotFound:  "No integrity report has been recorded for this interview yet.",
	ErrSessionBusy:        "This interview is already being streamed from another connection.",
	ErrCameraNotGranted:   "Camera access has not been granted.",
	ErrUnknownAction:      "Unknown action.",
	ErrFrameUndecodable:   "The frame could not be decoded.",
	ErrRateLimitExceeded:  "Too many requests. Please try again later.",
	ErrServiceUnavailable: "The service is temporarily unavailable.",

	ErrInternal: "An internal server error occurred.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
