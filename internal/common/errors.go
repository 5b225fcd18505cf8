// Package common provides error types shared by the command tree and the pkg libraries.
package common

import (
	"errors"
	"fmt"
)

// Validation failures. These are returned before any remote call is made.
var (
	ErrEmptySelection  = errors.New("no rows selected")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrReasonRequired  = errors.New("a reason is required to deny")
	ErrNothingToClear  = errors.New("no claim to clear")
	ErrNotAdmin        = errors.New("admin capability required")
	ErrCancelled       = errors.New("cancelled")
	ErrMissingConfig   = errors.New("missing configuration")
)

// ValidationError carries a localized message for a local validation failure.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid wraps a validation sentinel with the message shown to the user.
func Invalid(err error, message string) error {
	return &ValidationError{Err: err, Message: message}
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
