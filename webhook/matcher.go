package webhook

import "strings"

// Wildcard matches every event.
const Wildcard = "*"

// Match checks if an event type matches a registration pattern.
//
// Supported patterns (case-insensitive, '.' equals '_'):
//
//	"MESSAGES_UPSERT"  → exact match
//	"messages.upsert"  → same as above
//	"MESSAGES_*"       → matches MESSAGES_UPSERT, MESSAGES_UPDATE, etc.
//	"*"                → matches everything
func Match(pattern string, t EventType) bool {
	if pattern == Wildcard {
		return true
	}
	p := normalizeName(pattern)
	if prefix, ok := strings.CutSuffix(p, "*"); ok {
		return strings.HasPrefix(string(t), prefix)
	}
	return p == string(t)
}

// matches reports whether any pattern matches the event. Unknown events are
// also matched by their original name.
func matches(patterns []string, evt Event) bool {
	raw := EventType(normalizeName(evt.RawType))
	for _, p := range patterns {
		if Match(p, evt.Type) {
			return true
		}
		if evt.Type == EventUnknown && raw != "" && Match(p, raw) {
			return true
		}
	}
	return false
}
