// Package message is the closed catalog of outbound message types: each type
// maps to its Evolution API endpoint, its rate-limit category and the JSON
// Schema of its request body.
package message

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Rate-limit categories used by message types.
const (
	CategoryMessages = "messages"
	CategoryMedia    = "media"
)

// Type is an outbound message type.
type Type int

const (
	Text Type = iota + 1
	Media
	Audio
	Sticker
	Location
	Contact
	Reaction
	Poll
	List
	Buttons
	Status
)

type entry struct {
	name     string
	endpoint string
	category string
	schema   string
}

var catalog = map[Type]entry{
	Text:     {"text", "sendText", CategoryMessages, textSchema},
	Media:    {"media", "sendMedia", CategoryMedia, mediaSchema},
	Audio:    {"audio", "sendWhatsAppAudio", CategoryMedia, audioSchema},
	Sticker:  {"sticker", "sendSticker", CategoryMedia, stickerSchema},
	Location: {"location", "sendLocation", CategoryMessages, locationSchema},
	Contact:  {"contact", "sendContact", CategoryMessages, contactSchema},
	Reaction: {"reaction", "sendReaction", CategoryMessages, reactionSchema},
	Poll:     {"poll", "sendPoll", CategoryMessages, pollSchema},
	List:     {"list", "sendList", CategoryMessages, listSchema},
	Buttons:  {"buttons", "sendButtons", CategoryMessages, buttonsSchema},
	Status:   {"status", "sendStatus", CategoryMedia, statusSchema},
}

// Types lists every message type in declaration order.
func Types() []Type {
	return []Type{Text, Media, Audio, Sticker, Location, Contact, Reaction, Poll, List, Buttons, Status}
}

// ParseType converts a name such as "text" to a Type.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types() {
		if catalog[t].name == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Valid reports whether t is in the catalog.
func (t Type) Valid() bool {
	_, ok := catalog[t]
	return ok
}

func (t Type) String() string {
	if s, ok := catalog[t]; ok {
		return s.name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Endpoint returns the API operation name, e.g. "sendText".
func (t Type) Endpoint() string { return catalog[t].endpoint }

// Path returns the request path for instance, e.g. "message/sendText/inst".
func (t Type) Path(instance string) string {
	return "message/" + t.Endpoint() + "/" + url.PathEscape(instance)
}

// Category returns the rate-limit category.
func (t Type) Category() string { return catalog[t].category }

// Schema returns the JSON Schema of the request body.
func (t Type) Schema() json.RawMessage { return json.RawMessage(catalog[t].schema) }

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(catalog[t].name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := ParseType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
