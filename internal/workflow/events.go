package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	eventWorkflowStarted  = "workflow_started"
	eventNodeStarted      = "node_started"
	eventNodeFinished     = "node_finished"
	eventWorkflowFinished = "workflow_finished"
)

// Event is one decoded stream event. Implementations: WorkflowStarted,
// NodeStarted, NodeFinished, WorkflowFinished and IgnoredEvent.
type Event interface {
	Name() string
	Meta() Envelope
}

// Envelope carries the identifiers present on every event
type Envelope struct {
	Event         string `json:"event"`
	TaskID        string `json:"task_id"`
	WorkflowRunID string `json:"workflow_run_id"`
}

func (e Envelope) Meta() Envelope { return e }

type WorkflowStarted struct {
	Envelope
	WorkflowID string
	CreatedAt  int64
}

func (WorkflowStarted) Name() string { return eventWorkflowStarted }

type NodeStarted struct {
	Envelope
	NodeID   string
	NodeType string
	Title    string
}

func (NodeStarted) Name() string { return eventNodeStarted }

type NodeFinished struct {
	Envelope
	NodeID      string
	Title       string
	Status      string
	ElapsedTime float64
	TotalTokens int64
	TotalPrice  float64
	Currency    string
	Outputs     map[string]any
}

func (NodeFinished) Name() string { return eventNodeFinished }

type WorkflowFinished struct {
	Envelope
	WorkflowID  string
	Status      string
	Error       string
	ElapsedTime float64
	TotalTokens int64
	TotalSteps  int
	CreatedAt   int64
	FinishedAt  int64
	Outputs     map[string]any
}

func (WorkflowFinished) Name() string { return eventWorkflowFinished }

// IgnoredEvent is any event kind with no effect beyond the raw log
type IgnoredEvent struct {
	Envelope
}

func (e IgnoredEvent) Name() string { return e.Event }

// number decodes a JSON number or numeric string; anything else is 0
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	*n = 0
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		*n = number(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			*n = number(f)
		}
	}
	return nil
}

type eventPayload struct {
	Envelope
	Data json.RawMessage `json:"data"`
}

type eventData struct {
	ID                string          `json:"id"`
	WorkflowID        string          `json:"workflow_id"`
	NodeID            string          `json:"node_id"`
	NodeType          string          `json:"node_type"`
	Title             string          `json:"title"`
	Status            string          `json:"status"`
	Error             string          `json:"error"`
	ElapsedTime       number          `json:"elapsed_time"`
	TotalTokens       number          `json:"total_tokens"`
	TotalSteps        number          `json:"total_steps"`
	CreatedAt         number          `json:"created_at"`
	FinishedAt        number          `json:"finished_at"`
	Outputs           json.RawMessage `json:"outputs"`
	ExecutionMetadata *struct {
		TotalTokens number `json:"total_tokens"`
		TotalPrice  number `json:"total_price"`
		Currency    string `json:"currency"`
	} `json:"execution_metadata"`
}

// DecodeEvent decodes the JSON payload of one data: line
func DecodeEvent(payload []byte) (Event, error) {
	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("decode event: missing event name")
	}

	var d eventData
	if len(p.Data) > 0 && string(p.Data) != "null" {
		if err := json.Unmarshal(p.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", p.Event, err)
		}
	}

	switch p.Event {
	case eventWorkflowStarted:
		return WorkflowStarted{
			Envelope:   p.Envelope,
			WorkflowID: d.WorkflowID,
			CreatedAt:  int64(d.CreatedAt),
		}, nil
	case eventNodeStarted:
		return NodeStarted{
			Envelope: p.Envelope,
			NodeID:   d.NodeID,
			NodeType: d.NodeType,
			Title:    d.Title,
		}, nil
	case eventNodeFinished:
		ev := NodeFinished{
			Envelope:    p.Envelope,
			NodeID:      d.NodeID,
			Title:       d.Title,
			Status:      d.Status,
			ElapsedTime: float64(d.ElapsedTime),
			Outputs:     objectOutputs(d.Outputs),
		}
		if m := d.ExecutionMetadata; m != nil {
			ev.TotalTokens = int64(m.TotalTokens)
			ev.TotalPrice = float64(m.TotalPrice)
			ev.Currency = m.Currency
		}
		return ev, nil
	case eventWorkflowFinished:
		return WorkflowFinished{
			Envelope:    p.Envelope,
			WorkflowID:  d.WorkflowID,
			Status:      d.Status,
			Error:       d.Error,
			ElapsedTime: float64(d.ElapsedTime),
			TotalTokens: int64(d.TotalTokens),
			TotalSteps:  int(d.TotalSteps),
			CreatedAt:   int64(d.CreatedAt),
			FinishedAt:  int64(d.FinishedAt),
			Outputs:     objectOutputs(d.Outputs),
		}, nil
	default:
		return IgnoredEvent{Envelope: p.Envelope}, nil
	}
}

// objectOutputs returns raw as a map when it is a JSON object, otherwise nil
func objectOutputs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
