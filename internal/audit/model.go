package audit

import (
	"time"

	"github.com/amoylab/castwall/internal/registry"
)

// ClientRecord is one persisted client lifecycle event
type ClientRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClientID  int64     `gorm:"index" json:"client_id"`
	Event     string    `gorm:"size:32;index" json:"event"`
	Session   string    `gorm:"size:16" json:"session,omitempty"`
	IdleMS    int64     `json:"idle_ms,omitempty"`
	Discarded int       `json:"discarded,omitempty"`
	At        time.Time `gorm:"index" json:"at"`
}

// TableName overrides the default table name
func (ClientRecord) TableName() string {
	return "client_events"
}

// FromEvent converts a registry event into a record
func FromEvent(ev registry.Event) *ClientRecord {
	return &ClientRecord{
		ClientID:  ev.ClientID,
		Event:     string(ev.Type),
		Session:   registry.AbbreviateSession(ev.SessionID),
		IdleMS:    ev.IdleFor.Milliseconds(),
		Discarded: ev.Discarded,
		At:        ev.At,
	}
}
