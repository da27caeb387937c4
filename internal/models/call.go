package models

import (
	"time"

	"github.com/google/uuid"
)

// Call is an append/update log of CRM phone calls. The engine never deletes
// calls; re-syncs overwrite the row keyed by CloseCallID.
type Call struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CloseCallID string     `gorm:"size:255;not null;uniqueIndex" json:"close_call_id"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	LeadID      *uuid.UUID `gorm:"type:uuid;index" json:"lead_id"`
	Direction   string     `gorm:"size:20" json:"direction"`
	Status      string     `gorm:"size:50" json:"status"`
	Disposition string     `gorm:"size:100" json:"disposition"`
	Duration    int        `json:"duration"`
	CallDate    time.Time  `gorm:"index" json:"call_date"`
	Note        string     `gorm:"type:text" json:"note"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncedAt    time.Time  `json:"synced_at"`
}
