package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a connection name is unknown.
	ErrNotFound = errors.New("evolution: connection not found")

	// ErrInvalidConfig is returned when a connection has an unusable server URL or API key.
	ErrInvalidConfig = errors.New("evolution: invalid connection config")
)

// NotFoundError names the connection that could not be resolved.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Name)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidConfigError describes which field of a connection is invalid.
type InvalidConfigError struct {
	Name   string
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("%s: %q: %s: %s", ErrInvalidConfig, e.Name, e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidConfig.
func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }
