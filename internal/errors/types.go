package errors

import "fmt"

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Transport errors
	ErrCodeTransportParse   ErrorCode = "TRANSPORT_PARSE"
	ErrCodeTransportProcess ErrorCode = "TRANSPORT_PROCESS"

	// Agent runtime errors
	ErrCodeAgentRuntime  ErrorCode = "AGENT_RUNTIME"
	ErrCodeAgentResult   ErrorCode = "AGENT_RESULT"
	ErrCodeSessionResume ErrorCode = "SESSION_RESUME"

	// Persistence errors
	ErrCodeSessionStore ErrorCode = "SESSION_STORE"
	ErrCodeDatabase     ErrorCode = "DATABASE"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeTimeout  ErrorCode = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AsRetryable marks the error as safe to retry
func (e *AppError) AsRetryable() *AppError {
	e.Retryable = true
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}
