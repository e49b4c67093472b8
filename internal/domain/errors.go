package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every "record missing" error.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrBadgeNotFound is returned when a catalog badge is missing.
	ErrBadgeNotFound = fmt.Errorf("badge %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrSessionNotFound is returned when a login session does not exist.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrLeaderboardEntryNotFound is returned when a user has no entry in a period.
	ErrLeaderboardEntryNotFound = fmt.Errorf("leaderboard entry %w", ErrNotFound)
	// ErrInsufficientPoints is returned when a purchase costs more than the balance.
	ErrInsufficientPoints = errors.New("not enough points")
)

// ValidationError marks malformed input; no state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientError wraps a store or network failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsNotFound reports whether err refers to a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
