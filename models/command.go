package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdSyncNow         CommandType = "sync_now"
	CmdSyncIntegration CommandType = "sync_integration"
	CmdPause           CommandType = "pause"
	CmdResume          CommandType = "resume"
)

// Command is an operational instruction written into the local SQLite store
// (by an operator shell or a co-located tool) and polled by the scheduler.
type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	IntegrationID string `json:"integration_id,omitempty"`
}
