package evolution

import (
	"errors"

	"github.com/xraph/evolution/connection"
	"github.com/xraph/evolution/message"
	"github.com/xraph/evolution/queue"
	"github.com/xraph/evolution/ratelimit"
	"github.com/xraph/evolution/transport"
	"github.com/xraph/evolution/webhook"
)

// Sentinel errors returned by Client operations. Match them with errors.Is.
var (
	// ErrInvalidConfig is returned when New is given an unusable option.
	ErrInvalidConfig = errors.New("evolution: invalid config")

	// ErrConnectionNotFound is returned when a connection name is unknown.
	ErrConnectionNotFound = connection.ErrNotFound

	// ErrInvalidConnection is returned when a connection has an unusable
	// server URL or API key.
	ErrInvalidConnection = connection.ErrInvalidConfig

	// ErrRateLimitExceeded is returned when a category is exhausted under
	// the throw policy.
	ErrRateLimitExceeded = ratelimit.ErrExceeded

	// ErrTransport is returned when every attempt of a call failed.
	ErrTransport = transport.ErrTransport

	// ErrAPI is returned for a terminal non-2xx response.
	ErrAPI = transport.ErrAPI

	// ErrInvalidMessage is returned when a message body does not match the
	// schema of its type.
	ErrInvalidMessage = message.ErrInvalidMessage

	// ErrUnknownMessageType is returned for a message type outside the catalog.
	ErrUnknownMessageType = message.ErrUnknownType

	// ErrInvalidSignature is returned when a webhook fails verification.
	ErrInvalidSignature = webhook.ErrInvalidSignature

	// ErrInvalidPayload is returned when a webhook body is not a valid event.
	ErrInvalidPayload = webhook.ErrInvalidPayload

	// ErrHandlerExecution matches every handler failure.
	ErrHandlerExecution = webhook.ErrHandlerExecution

	// ErrTaskNotFound is returned when a queued task does not exist.
	ErrTaskNotFound = queue.ErrNotFound
)

// Typed errors carrying details. Use errors.As to inspect them.
type (
	ConnectionNotFoundError = connection.NotFoundError
	InvalidConnectionError  = connection.InvalidConfigError
	RateLimitExceededError  = ratelimit.ExceededError
	TransportError          = transport.TransportError
	APIError                = transport.APIError
	HandlerExecutionError   = webhook.HandlerExecutionError
)
