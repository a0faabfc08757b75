package services

import (
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/kappi/internal/common"
)

// LockoutError is returned when login is refused locally.
type LockoutError struct {
	Remaining time.Duration
	// Cause is the rejection that triggered the lockout; nil when the
	// lockout was already in force.
	Cause error
}

func (e *LockoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Too many failed attempts. Account locked for %d minutes.", minutesCeil(e.Remaining))
	}
	return fmt.Sprintf("Too many login attempts. Please try again in %d minutes.", minutesCeil(e.Remaining))
}

func (e *LockoutError) Is(target error) bool { return target == common.ErrTooManyAttempts }

func (e *LockoutError) Unwrap() error { return e.Cause }

func minutesCeil(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// ValidationError carries per-field messages from a rejected form.
type ValidationError struct {
	Fields map[Field]string
}

// Error returns the message of the first invalid field in form order.
func (e *ValidationError) Error() string {
	for _, f := range fieldOrder {
		if msg, ok := e.Fields[f]; ok {
			return msg
		}
	}
	return common.ErrValidationFailed.Error()
}

func (e *ValidationError) Is(target error) bool { return target == common.ErrValidationFailed }
