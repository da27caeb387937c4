package dto

import "time"

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}

// SyncRunResponse is the wire shape of one persisted sync run.
type SyncRunResponse struct {
	ID         string      `json:"id"`
	Trigger    string      `json:"trigger"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at"`
	Partial    bool        `json:"partial"`
	Resources  interface{} `json:"resources,omitempty"`
	Matching   interface{} `json:"matching,omitempty"`
	Error      string      `json:"error,omitempty"`
}
