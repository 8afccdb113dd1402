package signature

import "errors"

// Reasons a webhook fails verification.
var (
	ErrNoSecret                = errors.New("signature: no secret configured")
	ErrMissingSignature        = errors.New("signature: missing signature header")
	ErrMissingTimestamp        = errors.New("signature: missing timestamp header")
	ErrInvalidTimestamp        = errors.New("signature: invalid timestamp")
	ErrTimestampOutOfTolerance = errors.New("signature: timestamp outside tolerance")
	ErrSignatureMismatch       = errors.New("signature: signature mismatch")
)
