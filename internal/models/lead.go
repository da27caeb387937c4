package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead mirrors a CRM lead. Upserted by CloseLeadID; email is kept only for
// cross-system matching and is not a uniqueness key (two leads may share one).
type Lead struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CloseLeadID    string     `gorm:"size:255;not null;uniqueIndex" json:"close_lead_id"`
	Name           string     `gorm:"size:255" json:"name"`
	Email          string     `gorm:"size:255;index" json:"email"`
	Phone          string     `gorm:"size:64" json:"phone"`
	Status         string     `gorm:"size:100" json:"status"`
	FirstContactAt *time.Time `json:"first_contact_at"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
