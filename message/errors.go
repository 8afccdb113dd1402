package message

import "errors"

var (
	// ErrUnknownType is returned for a message type outside the catalog.
	ErrUnknownType = errors.New("evolution: unknown message type")

	// ErrInvalidMessage is returned when a body does not match its type's schema.
	ErrInvalidMessage = errors.New("evolution: invalid message body")
)
