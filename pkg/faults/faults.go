// Package faults classifies failures for the job retry machinery.
//
// Handlers surface failures as tagged errors; the job store uses the kind to
// decide between backoff re-enqueue and dead-letter quarantine.
package faults

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an error.
type Kind string

// Failure kinds.
const (
	// KindValidation is malformed input at an API boundary. Never retried.
	KindValidation Kind = "validation"
	// KindTransient covers DB deadlocks, HTTP 5xx/timeouts, and rate
	// limits. Retried with exponential backoff.
	KindTransient Kind = "transient"
	// KindSemantic covers domain failures (RAG_TIMEOUT, SCRIPT_INVALID,
	// ...). Retried up to max_attempts, then dead-lettered.
	KindSemantic Kind = "semantic"
	// KindIntegrity covers illegal state transitions, lost leases, and
	// constraint violations. Always dead-lettered immediately.
	KindIntegrity Kind = "integrity"
)

// Semantic failure codes.
const (
	CodeRAGTimeout       = "RAG_TIMEOUT"
	CodeScriptUngrounded = "SCRIPT_UNGROUNDED"
	CodeScriptInvalid    = "SCRIPT_INVALID"
	CodeDimMismatch      = "EMBEDDING_DIM_MISMATCH"
	CodeAudioQualityFail = "AUDIO_QUALITY_FAIL"
	CodeRateLimited      = "RATE_LIMITED"
	CodeModelLoading     = "MODEL_LOADING"
)

// Error is a failure tagged with its kind and an optional stable code.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient tags err as transient.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// Transientf tags a formatted message as transient with a stable code.
func Transientf(code, format string, args ...any) error {
	return &Error{Kind: KindTransient, Code: code, Err: fmt.Errorf(format, args...)}
}

// Semantic tags err as a semantic failure with a stable code.
func Semantic(code string, err error) error {
	return &Error{Kind: KindSemantic, Code: code, Err: err}
}

// Semanticf is Semantic with a formatted message.
func Semanticf(code, format string, args ...any) error {
	return &Error{Kind: KindSemantic, Code: code, Err: fmt.Errorf(format, args...)}
}

// Integrity tags err as an integrity violation.
func Integrity(err error) error {
	return &Error{Kind: KindIntegrity, Err: err}
}

// Integrityf is Integrity with a formatted message.
func Integrityf(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Err: fmt.Errorf(format, args...)}
}

// Validation tags err as a validation failure.
func Validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// KindOf returns the kind of err. Untagged errors default to transient so
// unexpected I/O failures get the retry path.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// CodeOf returns the stable code of err, or "" for untagged errors.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Retryable reports whether the kind participates in the backoff retry loop.
func Retryable(k Kind) bool {
	return k == KindTransient || k == KindSemantic
}
