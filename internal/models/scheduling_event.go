package models

import (
	"time"

	"github.com/google/uuid"
)

// Scheduling event states as reported by Calendly.
const (
	EventActive   = "active"
	EventCanceled = "canceled"
)

// SchedulingEvent mirrors one Calendly scheduled event. Keyed by the event
// URI; events in the sync window that vanish upstream are hard-deleted after
// a complete (non-partial) fetch.
type SchedulingEvent struct {
	ID               string     `gorm:"size:255;primaryKey" json:"id"`
	CalendlyEventURI string     `gorm:"size:500;not null;uniqueIndex" json:"calendly_event_uri"`
	EventTypeName    string     `gorm:"size:255" json:"event_type_name"`
	MappedType       string     `gorm:"size:50;index" json:"mapped_type"`
	StartTime        time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	Status           string     `gorm:"size:20;not null;default:'active'" json:"status"`
	HostName         string     `gorm:"size:255" json:"host_name"`
	HostEmail        string     `gorm:"size:255" json:"host_email"`
	InviteeName      string     `gorm:"size:255" json:"invitee_name"`
	InviteeEmail     string     `gorm:"size:255;index" json:"invitee_email"`
	LeadID           *uuid.UUID `gorm:"type:uuid;index" json:"lead_id"`
	SyncedAt         time.Time  `json:"synced_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (SchedulingEvent) TableName() string { return "calendly_events" }
