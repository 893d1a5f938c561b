package registry

import "time"

// EventType names a client lifecycle transition
type EventType string

const (
	EventClientCreated EventType = "client_created"
	EventClientReaped  EventType = "client_reaped"
)

// Event describes a client lifecycle transition
type Event struct {
	Type      EventType     `json:"type"`
	ClientID  int64         `json:"client_id"`
	SessionID string        `json:"session_id,omitempty"`
	At        time.Time     `json:"at"`
	IdleFor   time.Duration `json:"idle_for,omitempty"`
	Discarded int           `json:"discarded,omitempty"` // frames dropped from released queues
}

// Observer receives lifecycle events. It is called outside the registry
// lock and must not block.
type Observer func(Event)

// AbbreviateSession shortens a session token for logs and diagnostics
func AbbreviateSession(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8] + "..."
}
