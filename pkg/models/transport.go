package models

import "go-label-inspector/internal/workflow"

// DetectionResponse is returned by POST /api/detect
type DetectionResponse struct {
	DetectionID      string                `json:"detection_id,omitempty"`
	Success          bool                  `json:"success"`
	Partial          bool                  `json:"partial,omitempty"`
	Warning          string                `json:"warning,omitempty"`
	Attempts         int                   `json:"attempts"`
	TransferMethod   string                `json:"transfer_method,omitempty"`
	JSONData         map[string]any        `json:"json_data"`
	MarkdownContent  string                `json:"markdown_content"`
	SourceField      string                `json:"source_field,omitempty"`
	SplitMethod      string                `json:"split_method,omitempty"`
	Metadata         *workflow.RunMetadata `json:"metadata,omitempty"`
	Outputs          map[string]any        `json:"outputs,omitempty"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
	Timestamp        string                `json:"timestamp"`
	Error            *ErrorResponse        `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message,omitempty"`
	Type        string `json:"type,omitempty"`
	Details     string `json:"details,omitempty"`
	DetectionID string `json:"detection_id,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Time       string `json:"time"`
	Repository string `json:"repository,omitempty"`
}

// WorkflowCheckResponse is returned by GET /api/workflow/check
type WorkflowCheckResponse struct {
	Reachable    bool   `json:"reachable"`
	StatusCode   int    `json:"status_code,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
	ResponseMode string `json:"response_mode"`
	Message      string `json:"message,omitempty"`
}
