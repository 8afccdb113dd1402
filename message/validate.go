package message

import (
	"fmt"

	"github.com/xraph/evolution/schema"
)

// Validate checks body against the schema of t.
func Validate(v *schema.Validator, t Type, body any) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	if err := v.Validate(t.Schema(), body); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, t, err)
	}
	return nil
}
