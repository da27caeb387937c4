package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SyncRun records one orchestrated sync pass so operators can tell
// "nothing to sync" from "ran out of time" from "upstream is failing".
type SyncRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Trigger    string         `gorm:"size:20;not null" json:"trigger"`
	StartedAt  time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	Partial    bool           `json:"partial"`
	Resources  datatypes.JSON `gorm:"type:jsonb" json:"resources"`
	Matching   datatypes.JSON `gorm:"type:jsonb" json:"matching"`
	Error      string         `gorm:"type:text" json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
}
