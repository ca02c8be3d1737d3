package workflow

import (
	apperrors "go-label-inspector/internal/errors"
)

// RunMetadata is the execution summary reported with a successful call
type RunMetadata struct {
	TaskID        string  `json:"task_id,omitempty"`
	WorkflowRunID string  `json:"workflow_run_id,omitempty"`
	WorkflowID    string  `json:"workflow_id,omitempty"`
	Status        string  `json:"status"`
	ElapsedTime   float64 `json:"elapsed_time"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalPrice    float64 `json:"total_price"`
	Currency      string  `json:"currency,omitempty"`
	TotalSteps    int     `json:"total_steps"`
	CreatedAt     int64   `json:"created_at,omitempty"`
	FinishedAt    int64   `json:"finished_at,omitempty"`
	EventCount    int     `json:"event_count"`
}

// CallOutcome is the result of one invocation: *Success or *Failure.
type CallOutcome interface {
	AttemptCount() int
	outcome()
}

// Success carries the normalized result. Partial is set when the stream was
// lost on the final attempt after the workflow accepted the request.
type Success struct {
	Result   NormalizedResult
	Metadata RunMetadata
	Attempts int
	Partial  bool
	Warning  string
	// Raw is the provider's output mapping
	Raw map[string]any
}

func (s *Success) AttemptCount() int { return s.Attempts }
func (*Success) outcome()            {}

// Failure carries the classified error of the last attempt
type Failure struct {
	Err      *apperrors.AppError
	Attempts int
	// Record is the partial execution record when one was being built
	Record *ExecutionRecord
}

func (f *Failure) AttemptCount() int { return f.Attempts }
func (*Failure) outcome()            {}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "workflow call failed"
	}
	return f.Err.Error()
}
