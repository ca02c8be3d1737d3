package workflow

import (
	"encoding/json"
)

// RunStatus is the terminal state reported by the workflow
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// ExecutionRecord accumulates the state of one workflow run as events arrive.
// It is owned by a single StreamParser; once terminal it no longer changes.
type ExecutionRecord struct {
	TaskID        string
	WorkflowRunID string
	WorkflowID    string
	Status        RunStatus
	Error         string
	ElapsedTime   float64
	TotalTokens   int64
	TotalPrice    float64
	Currency      string
	TotalSteps    int
	CreatedAt     int64
	FinishedAt    int64
	Outputs       map[string]any

	// Events is the ordered log of every accepted raw event payload
	Events []json.RawMessage
	// Warnings lists lines that could not be decoded
	Warnings []string
	// IgnoredAfterTerminal counts events received after workflow_finished
	IgnoredAfterTerminal int

	terminal bool
}

func newExecutionRecord() *ExecutionRecord {
	return &ExecutionRecord{
		Status:  StatusPending,
		Outputs: make(map[string]any),
	}
}

// Terminal reports whether workflow_finished has been applied
func (r *ExecutionRecord) Terminal() bool {
	return r.terminal
}

// Metadata summarizes the record for a call outcome
func (r *ExecutionRecord) Metadata() RunMetadata {
	return RunMetadata{
		TaskID:        r.TaskID,
		WorkflowRunID: r.WorkflowRunID,
		WorkflowID:    r.WorkflowID,
		Status:        string(r.Status),
		ElapsedTime:   r.ElapsedTime,
		TotalTokens:   r.TotalTokens,
		TotalPrice:    r.TotalPrice,
		Currency:      r.Currency,
		TotalSteps:    r.TotalSteps,
		CreatedAt:     r.CreatedAt,
		FinishedAt:    r.FinishedAt,
		EventCount:    len(r.Events),
	}
}

// apply folds one event into the record. Only workflow_started sets the run
// identifiers; workflow_finished fills them when they are still missing.
func (r *ExecutionRecord) apply(ev Event) {
	switch e := ev.(type) {
	case WorkflowStarted:
		r.TaskID = e.TaskID
		r.WorkflowRunID = e.WorkflowRunID
		if e.WorkflowID != "" {
			r.WorkflowID = e.WorkflowID
		}
		r.CreatedAt = e.CreatedAt
	case NodeFinished:
		r.ElapsedTime += e.ElapsedTime
		r.TotalTokens += e.TotalTokens
		r.TotalPrice += e.TotalPrice
		if e.Currency != "" {
			r.Currency = e.Currency
		}
		r.mergeOutputs(e.Outputs)
	case WorkflowFinished:
		if r.TaskID == "" {
			r.TaskID = e.TaskID
		}
		if r.WorkflowRunID == "" {
			r.WorkflowRunID = e.WorkflowRunID
		}
		r.Status = RunStatus(e.Status)
		r.Error = e.Error
		r.FinishedAt = e.FinishedAt
		r.TotalSteps = e.TotalSteps
		if e.WorkflowID != "" {
			r.WorkflowID = e.WorkflowID
		}
		if e.CreatedAt != 0 && r.CreatedAt == 0 {
			r.CreatedAt = e.CreatedAt
		}
		if e.TotalTokens != 0 {
			r.TotalTokens = e.TotalTokens
		}
		r.mergeOutputs(e.Outputs)
		r.terminal = true
	}
}

func (r *ExecutionRecord) mergeOutputs(outputs map[string]any) {
	for k, v := range outputs {
		r.Outputs[k] = v
	}
}
