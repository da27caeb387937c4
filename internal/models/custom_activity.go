package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CustomActivity mirrors a typed CRM outcome record. Upserts are incremental:
// when (ResultValue, DateUpdated) are unchanged the row is not touched, which
// keeps frequent resyncs cheap. Once matched to a scheduling event the link is
// never revoked by the engine.
type CustomActivity struct {
	ID              string         `gorm:"size:255;primaryKey" json:"id"`
	CloseActivityID string         `gorm:"size:255;not null;uniqueIndex" json:"close_activity_id"`
	ActivityType    string         `gorm:"size:50;index" json:"activity_type"`
	ActivityTypeID  string         `gorm:"size:255" json:"activity_type_id"`
	ResultFieldID   string         `gorm:"size:255" json:"result_field_id"`
	ResultValue     *string        `gorm:"size:500" json:"result_value"`
	LeadCloseID     string         `gorm:"size:255;index" json:"lead_close_id"`
	LeadEmail       *string        `gorm:"size:255;index" json:"lead_email"`
	LeadName        *string        `gorm:"size:255" json:"lead_name"`
	UserCloseID     *string        `gorm:"size:255" json:"user_close_id"`
	UserEmail       *string        `gorm:"size:255" json:"user_email"`
	UserName        *string        `gorm:"size:255" json:"user_name"`
	CustomFields    datatypes.JSON `gorm:"type:jsonb" json:"custom_fields"`
	CalendlyEventID *string        `gorm:"size:255;index" json:"calendly_event_id"`
	MatchConfidence *float64       `json:"match_confidence"`
	MatchedAt       *time.Time     `json:"matched_at"`
	DateCreated     time.Time      `gorm:"not null;index" json:"date_created"`
	DateUpdated     time.Time      `gorm:"not null" json:"date_updated"`
	SyncedAt        time.Time      `json:"synced_at"`
}

// ActivityMatch is an append-only audit row for every accepted activity-event
// link, carrying the score and a human-readable reason.
type ActivityMatch struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID string    `gorm:"size:255;not null;index" json:"activity_id"`
	EventID    string    `gorm:"size:255;not null;index" json:"event_id"`
	Score      float64   `gorm:"not null" json:"score"`
	Reason     string    `gorm:"size:255" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
