package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNotFound            = errors.New("not found")
	ErrPlatformUnsupported = errors.New("notification platform unsupported")
	ErrRollBudgetExhausted = errors.New("roll budget exhausted")
	ErrPersistence         = errors.New("persistence error")

	ErrInvalidTime     = errors.New("invalid time of day")
	ErrInvalidTZ       = errors.New("invalid timezone")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidRating   = errors.New("invalid rating")
)

// PersistenceError wraps a failed backend operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a PersistenceError; nil stays nil.
// Errors that already carry a domain meaning (not found) pass through.
func Persistence(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// RollBudgetExhaustedError carries the moment rolls become available again.
type RollBudgetExhaustedError struct {
	Until time.Time
}

func (e *RollBudgetExhaustedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrRollBudgetExhausted, e.Until.UTC().Format(time.RFC3339))
}

func (e *RollBudgetExhaustedError) Is(target error) bool { return target == ErrRollBudgetExhausted }

// Remaining returns the cooldown left at now, never negative.
func (e *RollBudgetExhaustedError) Remaining(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
