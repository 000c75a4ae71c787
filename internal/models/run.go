package models

import "time"

// RunState represents the lifecycle state of a reconciliation run
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// IsTerminal reports whether the run has finished
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// RunTrigger identifies what started a run
type RunTrigger string

const (
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerMCP      RunTrigger = "mcp"
	RunTriggerCLI      RunTrigger = "cli"
)

// RunRecord is the archived snapshot of a reconciliation run
type RunRecord struct {
	ID         string              `json:"id"`
	State      RunState            `json:"state" badgerhold:"index"`
	Trigger    RunTrigger          `json:"trigger"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Error      string              `json:"error,omitempty"`
	Cancelled  bool                `json:"cancelled,omitempty"`
	ReportPath string              `json:"report_path,omitempty"`
	Products   int                 `json:"products"`
	Tally      map[PriceStatus]int `json:"tally,omitempty"`
	Output     string              `json:"output,omitempty"`
}

// RunStatus is the lifecycle notification sent to observers
type RunStatus struct {
	RunID      string   `json:"run_id"`
	State      RunState `json:"state"`
	Error      string   `json:"error,omitempty"`
	ReportPath string   `json:"report_path,omitempty"`
}
