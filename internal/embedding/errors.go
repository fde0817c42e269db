package embedding

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures.
type Kind string

const (
	KindEndpointNotFound  Kind = "endpoint-not-found"
	KindTimeout           Kind = "timeout"
	KindServerError       Kind = "server-error"
	KindBadRequest        Kind = "bad-request"
	KindMalformedResponse Kind = "malformed-response"
	KindUnexpected        Kind = "unexpected-error"
)

// Error is returned by Client for every failed batch.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error

	// retryable marks transport-level failures (connection errors, timeouts).
	retryable bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure was transport-level.
func (e *Error) Retryable() bool { return e.retryable }

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
