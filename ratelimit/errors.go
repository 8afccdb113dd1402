package ratelimit

import (
	"errors"
	"fmt"
)

// ErrExceeded is returned when a category has no slot left in its window.
var ErrExceeded = errors.New("evolution: rate limit exceeded")

// ExceededError reports when the category's window resets.
type ExceededError struct {
	Category          string
	RetryAfterSeconds int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: category %q, retry after %ds", ErrExceeded, e.Category, e.RetryAfterSeconds)
}

// Is reports whether target is ErrExceeded.
func (e *ExceededError) Is(target error) bool { return target == ErrExceeded }

// Err converts a denied result into an *ExceededError. It returns nil when
// the result was allowed.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &ExceededError{Category: r.Category, RetryAfterSeconds: r.RetryAfterSeconds}
}
