package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pipeline stage error codes.
const (
	ErrInvalidQuery       ErrorCode = "INVALID_QUERY"
	ErrEnhancementFailed  ErrorCode = "ENHANCEMENT_FAILED"
	ErrRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
	ErrRerankingFailed    ErrorCode = "RERANKING_FAILED"
	ErrVerificationFailed ErrorCode = "VERIFICATION_FAILED"
	ErrAssemblyFailed     ErrorCode = "ASSEMBLY_FAILED"
	ErrCacheError         ErrorCode = "CACHE_ERROR"
	ErrConfigError        ErrorCode = "CONFIG_ERROR"
	ErrAborted            ErrorCode = "ABORTED"
)

// Collaborator error codes, surfaced through the stage codes above as causes.
const (
	ErrEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
	ErrStoreError        ErrorCode = "STORE_ERROR"
	ErrModelNotFound     ErrorCode = "MODEL_NOT_FOUND"
	ErrRateLimit         ErrorCode = "RATE_LIMIT"
	ErrEmptyInput        ErrorCode = "EMPTY_INPUT"
	ErrDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrInvalidFilter     ErrorCode = "INVALID_FILTER"
	ErrIndexNotBuilt     ErrorCode = "INDEX_NOT_BUILT"
)

// Error is a structured error carrying the code and the stage that produced
// it, so callers can decide fallback behavior per stage.
type Error struct {
	Code    ErrorCode `json:"code"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Stage, e.Message, e.Cause)
	case e.Stage != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithStage records the pipeline stage that produced the error.
func (e *Error) WithStage(stage Stage) *Error {
	e.Stage = stage
	return e
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the code from an error, unwrapping as needed.
// Returns "" when no *Error is found in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetStage extracts the stage from an error, unwrapping as needed.
func GetStage(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
