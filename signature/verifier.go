package signature

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the accepted clock difference between sender and receiver.
const DefaultTolerance = 5 * time.Minute

// Config configures a Verifier.
type Config struct {
	// Secrets are the accepted signing secrets. Several may be active while
	// a secret is rotated.
	Secrets []string

	// Tolerance is the maximum age (or clock skew) of a timestamp.
	Tolerance time.Duration

	// AllowUnsigned accepts every request when no secret is configured.
	// Meant for development only.
	AllowUnsigned bool
}

// Verifier authenticates inbound webhooks.
type Verifier struct {
	secrets       []string
	tolerance     time.Duration
	allowUnsigned bool
	now           func() time.Time
}

// NewVerifier creates a Verifier. Empty secrets are ignored and a zero
// tolerance becomes DefaultTolerance.
func NewVerifier(cfg Config) *Verifier {
	v := &Verifier{
		tolerance:     cfg.Tolerance,
		allowUnsigned: cfg.AllowUnsigned,
		now:           time.Now,
	}
	for _, s := range cfg.Secrets {
		if s != "" {
			v.secrets = append(v.secrets, s)
		}
	}
	if v.tolerance <= 0 {
		v.tolerance = DefaultTolerance
	}
	return v
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Unsigned reports whether the verifier accepts requests without checking them.
func (v *Verifier) Unsigned() bool {
	return len(v.secrets) == 0 && v.allowUnsigned
}

// Verify reports whether the request is authentic.
func (v *Verifier) Verify(body []byte, signatureHeader, timestampHeader string) bool {
	return v.Check(body, signatureHeader, timestampHeader) == nil
}

// Check returns nil for an authentic request, otherwise the reason it was
// rejected. A stale timestamp is rejected even when the signature matches.
func (v *Verifier) Check(body []byte, signatureHeader, timestampHeader string) error {
	if len(v.secrets) == 0 {
		if v.allowUnsigned {
			return nil
		}
		return ErrNoSecret
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return ErrMissingSignature
	}
	timestampHeader = strings.TrimSpace(timestampHeader)
	if timestampHeader == "" {
		return ErrMissingTimestamp
	}

	ts, err := ParseTimestamp(timestampHeader)
	if err != nil {
		return err
	}
	if skew := v.now().Sub(ts).Abs(); skew > v.tolerance {
		return fmt.Errorf("%w: skew %s exceeds %s", ErrTimestampOutOfTolerance, skew.Round(time.Second), v.tolerance)
	}

	candidates := Parse(signatureHeader)
	for _, secret := range v.secrets {
		expected := sign(body, secret, timestampHeader)
		for _, sig := range candidates {
			if equal(expected, sig) {
				return nil
			}
		}
	}
	return ErrSignatureMismatch
}

// Parse splits a signature header into its versioned signatures. Entries
// may be separated by commas or spaces; entries of other versions are
// dropped.
func Parse(header string) []string {
	fields := strings.FieldsFunc(header, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, Version+"=") {
			out = append(out, f)
		}
	}
	return out
}

// ParseTimestamp accepts unix seconds or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// VerifyWebhook checks one request against a single secret and tolerance.
// An empty secret never verifies.
func VerifyWebhook(body []byte, signatureHeader, timestampHeader, secret string, tolerance time.Duration, now time.Time) bool {
	v := NewVerifier(Config{Secrets: []string{secret}, Tolerance: tolerance})
	v.now = func() time.Time { return now }
	return v.Verify(body, signatureHeader, timestampHeader)
}
