package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when every attempt of a call failed.
	ErrTransport = errors.New("evolution: transport failed")

	// ErrAPI is returned for a terminal non-2xx response.
	ErrAPI = errors.New("evolution: api error")
)

// maxErrorBody caps how much of a response body an APIError message prints.
const maxErrorBody = 256

// TransportError wraps the last failure after retries are exhausted.
type TransportError struct {
	Attempts int
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrTransport, e.Attempts, e.Cause)
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Cause }

// APIError carries a non-2xx response of the Evolution API.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("%s: status %d: %s", ErrAPI, e.StatusCode, body)
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool { return target == ErrAPI }
