package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassAuth represents rejected or expired authentication.
	// Triggers full cache invalidation and session replacement.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound represents a secret absent on the backend.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassTimeout represents a fetch that exceeded its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassTransient represents network or backend failures that a
	// later request may not hit again.
	ErrorClassTransient ErrorClass = "transient"
)

// Error is an upstream failure with its classification.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error in %s: %v", e.Class, e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s error in %s", e.Class, e.Op)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given class and operation name.
func NewError(class ErrorClass, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// ClassOf returns the classification of err, or "" if err carries none.
func ClassOf(err error) ErrorClass {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class
	}
	return ""
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return ClassOf(err) == ErrorClassAuth }

// IsNotFound reports whether err is a missing-secret failure.
func IsNotFound(err error) bool { return ClassOf(err) == ErrorClassNotFound }

// IsTimeout reports whether err is an upstream deadline failure.
func IsTimeout(err error) bool { return ClassOf(err) == ErrorClassTimeout }

// classify maps a raw SDK failure into the taxonomy. The SDK surfaces
// backend errors as flat strings, so classification is by message content;
// anything unrecognized is treated as transient.
func classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorClassTimeout, op, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return NewError(ErrorClassNotFound, op, err)
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "access token") ||
		strings.Contains(msg, "not authenticated") ||
		strings.Contains(msg, "vault locked"):
		return NewError(ErrorClassAuth, op, err)
	default:
		return NewError(ErrorClassTransient, op, err)
	}
}
