package webhook

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when an inbound webhook fails verification.
	ErrInvalidSignature = errors.New("evolution: invalid webhook signature")

	// ErrInvalidPayload is returned when a webhook body is not a valid event.
	ErrInvalidPayload = errors.New("evolution: invalid webhook payload")

	// ErrEnqueueFailed is returned when a queued-mode webhook cannot be enqueued.
	ErrEnqueueFailed = errors.New("evolution: webhook enqueue failed")

	// ErrHandlerNotFound is returned when delivering to an unregistered handler.
	ErrHandlerNotFound = errors.New("evolution: webhook handler not found")

	// ErrDuplicateHandler is returned when registering a name twice.
	ErrDuplicateHandler = errors.New("evolution: duplicate webhook handler name")

	// ErrInvalidRegistration is returned for a nil handler or no event types.
	ErrInvalidRegistration = errors.New("evolution: invalid webhook registration")

	// ErrHandlerExecution matches every *HandlerExecutionError.
	ErrHandlerExecution = errors.New("evolution: webhook handler failed")
)

// HandlerExecutionError records one handler's failure for one event.
type HandlerExecutionError struct {
	EventType EventType
	Handler   string
	Cause     error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("evolution: handler %q failed for %s: %v", e.Handler, e.EventType, e.Cause)
}

// Unwrap returns the handler's error.
func (e *HandlerExecutionError) Unwrap() error { return e.Cause }

// Is matches ErrHandlerExecution.
func (e *HandlerExecutionError) Is(target error) bool { return target == ErrHandlerExecution }
