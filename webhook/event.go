// Package webhook turns inbound Evolution API webhooks into events and routes
// them to registered handlers, either directly or through a delivery queue.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/evolution/id"
	"github.com/xraph/evolution/schema"
)

// EventType is a normalized webhook event name such as MESSAGES_UPSERT.
type EventType string

// EventUnknown is assigned to events whose name is not in the catalog. The
// original name is kept in Event.RawType.
const EventUnknown EventType = "UNKNOWN"

// Events emitted by the Evolution API.
const (
	EventApplicationStartup      EventType = "APPLICATION_STARTUP"
	EventQRCodeUpdated           EventType = "QRCODE_UPDATED"
	EventConnectionUpdate        EventType = "CONNECTION_UPDATE"
	EventMessagesSet             EventType = "MESSAGES_SET"
	EventMessagesUpsert          EventType = "MESSAGES_UPSERT"
	EventMessagesEdited          EventType = "MESSAGES_EDITED"
	EventMessagesUpdate          EventType = "MESSAGES_UPDATE"
	EventMessagesDelete          EventType = "MESSAGES_DELETE"
	EventSendMessage             EventType = "SEND_MESSAGE"
	EventContactsSet             EventType = "CONTACTS_SET"
	EventContactsUpsert          EventType = "CONTACTS_UPSERT"
	EventContactsUpdate          EventType = "CONTACTS_UPDATE"
	EventPresenceUpdate          EventType = "PRESENCE_UPDATE"
	EventChatsSet                EventType = "CHATS_SET"
	EventChatsUpsert             EventType = "CHATS_UPSERT"
	EventChatsUpdate             EventType = "CHATS_UPDATE"
	EventChatsDelete             EventType = "CHATS_DELETE"
	EventGroupsUpsert            EventType = "GROUPS_UPSERT"
	EventGroupUpdate             EventType = "GROUP_UPDATE"
	EventGroupParticipantsUpdate EventType = "GROUP_PARTICIPANTS_UPDATE"
	EventLabelsEdit              EventType = "LABELS_EDIT"
	EventLabelsAssociation       EventType = "LABELS_ASSOCIATION"
	EventCall                    EventType = "CALL"
	EventLogoutInstance          EventType = "LOGOUT_INSTANCE"
	EventRemoveInstance          EventType = "REMOVE_INSTANCE"
	EventTypebotStart            EventType = "TYPEBOT_START"
	EventTypebotChangeStatus     EventType = "TYPEBOT_CHANGE_STATUS"
	EventInstanceCreate          EventType = "INSTANCE_CREATE"
	EventInstanceDelete          EventType = "INSTANCE_DELETE"
	EventStatusInstance          EventType = "STATUS_INSTANCE"
)

var known = map[EventType]struct{}{}

func init() {
	for _, t := range KnownEventTypes() {
		known[t] = struct{}{}
	}
}

// KnownEventTypes lists the catalog in a stable order.
func KnownEventTypes() []EventType {
	return []EventType{
		EventApplicationStartup, EventQRCodeUpdated, EventConnectionUpdate,
		EventMessagesSet, EventMessagesUpsert, EventMessagesEdited, EventMessagesUpdate, EventMessagesDelete,
		EventSendMessage,
		EventContactsSet, EventContactsUpsert, EventContactsUpdate,
		EventPresenceUpdate,
		EventChatsSet, EventChatsUpsert, EventChatsUpdate, EventChatsDelete,
		EventGroupsUpsert, EventGroupUpdate, EventGroupParticipantsUpdate,
		EventLabelsEdit, EventLabelsAssociation,
		EventCall,
		EventLogoutInstance, EventRemoveInstance,
		EventTypebotStart, EventTypebotChangeStatus,
		EventInstanceCreate, EventInstanceDelete, EventStatusInstance,
	}
}

// Known reports whether t is in the catalog.
func (t EventType) Known() bool {
	_, ok := known[t]
	return ok
}

// normalizeName upper-cases a wire event name and maps '.' and '-' to '_',
// so "messages.upsert" becomes "MESSAGES_UPSERT".
func normalizeName(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', ' ':
			return '_'
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizeEventType maps a wire event name to its catalog type, or
// EventUnknown when it is not in the catalog.
func NormalizeEventType(raw string) EventType {
	t := EventType(normalizeName(raw))
	if t.Known() {
		return t
	}
	return EventUnknown
}

// Event is one inbound webhook. Handlers receive it by value and must treat
// Payload as read-only.
type Event struct {
	ID             id.ID           `json:"id"`
	Instance       string          `json:"instance"`
	Type           EventType       `json:"type"`
	RawType        string          `json:"raw_type"`
	Payload        map[string]any  `json:"payload"`
	Data           json.RawMessage `json:"data,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	SignatureValid bool            `json:"signature_valid"`
}

// envelopeSchema is the minimal shape of every webhook body.
var envelopeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"event":    {"type": "string", "minLength": 1},
		"instance": {"type": "string"}
	},
	"required": ["event"]
}`)

type envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// ParseEvent decodes a webhook body. A non-empty instance (taken from the
// request path) wins over the body's instance field.
func ParseEvent(v *schema.Validator, body []byte, instance string, receivedAt time.Time) (Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Event{}, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if err := v.Validate(envelopeSchema, body); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if instance == "" {
		instance = env.Instance
	}
	return Event{
		ID:         id.NewEventID(),
		Instance:   instance,
		Type:       NormalizeEventType(env.Event),
		RawType:    env.Event,
		Payload:    payload,
		Data:       env.Data,
		ReceivedAt: receivedAt.UTC(),
	}, nil
}
