package models

import (
	"time"

	"github.com/google/uuid"
)

// Appointment types derived from CRM records and scheduling event names.
const (
	AppointmentErstgespraech = "erstgespraech"
	AppointmentKonzept       = "konzept"
	AppointmentUmsetzung     = "umsetzung"
	AppointmentService       = "service"
	AppointmentSonstiges     = "sonstiges"
)

// Appointment lifecycle states.
const (
	StatusGeplant         = "geplant"
	StatusStattgefunden   = "stattgefunden"
	StatusNoShow          = "no_show"
	StatusAbgesagtKunde   = "abgesagt_kunde"
	StatusVerschobenKunde = "verschoben_kunde"
)

// Appointment is keyed by a deterministic ID derived from
// (lead upstream id, type, original date) so that re-syncs are idempotent.
// OriginalDate never changes after creation; reschedules move CurrentDate and
// are recorded in AppointmentHistory.
type Appointment struct {
	ID              string     `gorm:"size:255;primaryKey" json:"id"`
	LeadID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"lead_id"`
	UserID          *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Type            string     `gorm:"size:50;not null" json:"type"`
	OriginalDate    time.Time  `gorm:"not null" json:"original_date"`
	CurrentDate     time.Time  `gorm:"not null;index" json:"current_date"`
	Status          string     `gorm:"size:50;not null" json:"status"`
	Result          string     `gorm:"size:255" json:"result"`
	ResultDetails   string     `gorm:"type:text" json:"result_details"`
	RescheduleCount int        `json:"reschedule_count"`
	CalendlyEventID *string    `gorm:"size:255;index" json:"calendly_event_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// History actions.
const (
	HistoryBooked      = "booked"
	HistoryRescheduled = "rescheduled"
)

// AppointmentHistory is an append-only ledger of appointment bookings and
// reschedules. Rows are never mutated or deleted.
type AppointmentHistory struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AppointmentID string     `gorm:"size:255;not null;index" json:"appointment_id"`
	Action        string     `gorm:"size:20;not null" json:"action"`
	OldDate       *time.Time `json:"old_date"`
	NewDate       time.Time  `gorm:"not null" json:"new_date"`
	ChangedAt     time.Time  `gorm:"not null" json:"changed_at"`
}
