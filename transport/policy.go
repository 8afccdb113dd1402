package transport

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed Backoff = "fixed"

	// BackoffLinear waits BaseDelay × attempt.
	BackoffLinear Backoff = "linear"

	// BackoffExponential waits BaseDelay × 2^(attempt−1), capped at MaxDelay.
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff converts a configuration string into a Backoff.
func ParseBackoff(s string) (Backoff, error) {
	switch b := Backoff(s); b {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		return b, nil
	default:
		return "", fmt.Errorf("evolution: unknown backoff strategy %q", s)
	}
}

// DefaultRetryableStatusCodes are retried unless a policy says otherwise.
var DefaultRetryableStatusCodes = []int{408, 429, 500, 502, 503, 504}

// Policy bounds the retries of one outbound call.
type Policy struct {
	// MaxAttempts includes the first try. Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is the delay strategy between attempts.
	Backoff Backoff

	// BaseDelay is the unit delay of every strategy.
	BaseDelay time.Duration

	// MaxDelay caps the exponential strategy. Zero means no cap.
	MaxDelay time.Duration

	// RetryableStatusCodes are response codes treated like transport failures.
	RetryableStatusCodes []int

	// AttemptTimeout bounds a single attempt. Zero means no per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns three attempts with exponential backoff from one
// second up to thirty.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          3,
		Backoff:              BackoffExponential,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		RetryableStatusCodes: slices.Clone(DefaultRetryableStatusCodes),
		AttemptTimeout:       30 * time.Second,
	}
}

// Validate reports the first invalid field of p.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("evolution: retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if _, err := ParseBackoff(string(p.Backoff)); err != nil {
		return err
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.AttemptTimeout < 0 {
		return fmt.Errorf("evolution: retry policy: delays must not be negative")
	}
	return nil
}

// Retryable reports whether status is in the retryable set.
func (p Policy) Retryable(status int) bool {
	return slices.Contains(p.RetryableStatusCodes, status)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns how long to wait after the given failed attempt (1-based)
// before the next one.
func Delay(attempt int, p Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.Backoff {
	case BackoffLinear:
		if p.BaseDelay > 0 && time.Duration(attempt) > time.Duration(math.MaxInt64)/p.BaseDelay {
			return time.Duration(math.MaxInt64)
		}
		return p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		d := p.BaseDelay
		for i := 1; i < attempt; i++ {
			if d > time.Duration(math.MaxInt64/2) {
				// Saturate instead of wrapping negative.
				d = time.Duration(math.MaxInt64)
				break
			}
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
		return d
	default:
		return p.BaseDelay
	}
}

// Decision is the outcome of evaluating an attempt.
type Decision int

const (
	// Done means the response is final, whatever its status.
	Done Decision = iota

	// Retry means another attempt should follow after Delay.
	Retry

	// GiveUp means the attempt failed and no attempts remain.
	GiveUp
)

// Decide determines what follows an attempt.
//
// Decision matrix:
//   - response with a status outside the retryable set → Done
//   - retryable status or transport error, attempts remaining → Retry
//   - retryable status or transport error, attempts exhausted → GiveUp
func Decide(p Policy, resp *Response, err error, attempt int) Decision {
	if err == nil && resp != nil && !p.Retryable(resp.StatusCode) {
		return Done
	}
	if attempt >= p.attempts() {
		return GiveUp
	}
	return Retry
}
