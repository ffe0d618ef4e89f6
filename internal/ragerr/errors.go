// Package ragerr defines the tagged error taxonomy shared across every
// stage of the retrieval pipeline. It generalizes a
// code/message/recoverable/suggestion tool-error shape into a
// pipeline-stage-aware variant.
package ragerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure. Values are stable and safe to
// switch on.
type Code string

const (
	CodeInvalidQuery       Code = "INVALID_QUERY"
	CodeConfigError        Code = "CONFIG_ERROR"
	CodeIndexNotBuilt      Code = "INDEX_NOT_BUILT"
	CodeEmbeddingFailed    Code = "EMBEDDING_FAILED"
	CodeStoreError         Code = "STORE_ERROR"
	CodeRetrievalFailed    Code = "RETRIEVAL_FAILED"
	CodeEnhancementFailed  Code = "ENHANCEMENT_FAILED"
	CodeRerankingFailed    Code = "RERANKING_FAILED"
	CodeVerificationFailed Code = "VERIFICATION_FAILED"
	CodeAssemblyFailed     Code = "ASSEMBLY_FAILED"
	CodeAborted            Code = "ABORTED"
	CodeCacheError         Code = "CACHE_ERROR"
)

// Error is the tagged variant returned by every stage of the engine.
// It is never used to smuggle secrets from adapters: Hint carries only
// operator-safe guidance.
type Error struct {
	EngineName   string
	Code         Code
	Stage        string // pipeline stage active when the error occurred, if any
	Cause        error
	Retryable    bool
	RetryAfterMs int
	Hint         string
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s at stage %q: %v", e.EngineName, e.Code, e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.EngineName, e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is (or wraps) a *Error with the same Code,
// so errors.Is matches two tagged errors by Code alone. Code itself is
// not an error value; callers usually compare Code (or CodeOf) directly.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// New constructs a tagged error. engineName identifies the Engine
// instance (useful when multiple engines run in one process).
func New(engineName string, code Code, stage string, cause error) *Error {
	return &Error{
		EngineName: engineName,
		Code:       code,
		Stage:      stage,
		Cause:      cause,
		Retryable:  defaultRetryable(code),
	}
}

// WithHint attaches operator-facing guidance and returns the receiver for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithRetryAfter marks the error retryable after the given delay.
func (e *Error) WithRetryAfter(ms int) *Error {
	e.Retryable = true
	e.RetryAfterMs = ms
	return e
}

func defaultRetryable(code Code) bool {
	switch code {
	case CodeEmbeddingFailed, CodeStoreError, CodeRetrievalFailed,
		CodeEnhancementFailed, CodeRerankingFailed, CodeVerificationFailed:
		return true
	default:
		return false
	}
}

// CodeOf extracts the Code from err if it (or something it wraps) is a
// *Error, and reports whether one was found.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
