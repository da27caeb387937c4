package models

import (
	"time"

	"github.com/google/uuid"
)

// UnknownCloseUserID marks the fallback user that owns calls whose upstream
// user could not be resolved.
const UnknownCloseUserID = "UNKNOWN_USER"

// User mirrors a CRM user. Users are created on first sight of a record that
// references them and are never deleted by the sync engine.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CloseUserID *string   `gorm:"size:255;uniqueIndex" json:"close_user_id"`
	Name        string    `gorm:"size:255" json:"name"`
	Email       string    `gorm:"size:255;index" json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
