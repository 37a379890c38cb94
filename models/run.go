package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// SyncRun is the local operational record of one scheduler pass over all
// active integrations. Kept in SQLite, separate from the per-integration
// sync_attempts audit log in Postgres.
type SyncRun struct {
	ID           int64      `json:"id" db:"id"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	Status       RunStatus  `json:"status" db:"status"`
	Integrations int        `json:"integrations" db:"integrations"`
	Succeeded    int        `json:"succeeded" db:"succeeded"`
	Failed       int        `json:"failed" db:"failed"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
}
