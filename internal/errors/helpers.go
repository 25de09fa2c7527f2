package errors

import (
	stderrors "errors"
	"fmt"
)

// NewParseError creates a transport parse error for one malformed line
func NewParseError(err error, line int) *AppError {
	return Wrap(err, ErrCodeTransportParse, "failed to decode transport line").
		WithContext("line", line)
}

// NewProcessError creates a transport process failure; always retryable
// because the receive loop is restarted indefinitely.
func NewProcessError(err error, exitCode int) *AppError {
	return Wrap(err, ErrCodeTransportProcess, fmt.Sprintf("receive process exited with code %d", exitCode)).
		AsRetryable().
		WithContext("exit_code", exitCode)
}

// NewAgentError creates an agent runtime execution error
func NewAgentError(err error, conversationID string) *AppError {
	return Wrap(err, ErrCodeAgentRuntime, "agent turn failed").
		WithContext("conversation_id", conversationID)
}

// NewResumeError creates a stale-session resume error. Recovered locally
// by discarding the session id and starting fresh.
func NewResumeError(sessionID string) *AppError {
	return New(ErrCodeSessionResume, "agent rejected session resume").
		AsRetryable().
		WithContext("session_id", sessionID)
}

// IsResumeError reports whether err is a session resume rejection
func IsResumeError(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == ErrCodeSessionResume
	}
	return false
}

// GetCode extracts the error code, or ErrCodeInternal for plain errors
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the error is marked safe to retry
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
