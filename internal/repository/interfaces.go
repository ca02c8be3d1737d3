package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-label-inspector/internal/workflow"
)

// DetectionRepository persists the outcome of each detection call
type DetectionRepository interface {
	// RecordDetection stores outcome together with the request metadata and
	// returns the new record id
	RecordDetection(ctx context.Context, outcome workflow.CallOutcome, meta RequestMetadata) (string, error)

	// GetDetection loads a single record, or returns ErrDetectionNotFound
	GetDetection(ctx context.Context, id string) (*DetectionRecord, error)
}

// RequestMetadata describes the caller's request alongside the outcome
type RequestMetadata struct {
	FileName           string        `bson:"file_name,omitempty" json:"file_name,omitempty"`
	ImageURL           string        `bson:"image_url,omitempty" json:"image_url,omitempty"`
	FileSize           int           `bson:"file_size,omitempty" json:"file_size,omitempty"`
	ContentType        string        `bson:"content_type,omitempty" json:"content_type,omitempty"`
	FoodType           string        `bson:"food_type" json:"food_type"`
	PackageFoodType    string        `bson:"package_food_type" json:"package_food_type"`
	SingleOrMulti      string        `bson:"single_or_multi" json:"single_or_multi"`
	PackageSize        string        `bson:"package_size" json:"package_size"`
	DetectionTime      string        `bson:"detection_time,omitempty" json:"detection_time,omitempty"`
	SpecialRequirement string        `bson:"special_requirement,omitempty" json:"special_requirement,omitempty"`
	ClientIP           string        `bson:"client_ip,omitempty" json:"client_ip,omitempty"`
	ProcessingTime     time.Duration `bson:"processing_time_ns" json:"processing_time_ns"`
}

// Record statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Summary keys found in the structured part of a report
const (
	keyProductName    = "产品名称"
	keyOverallRating  = "总体评级"
	keyComplianceRate = "合规率"
)

// DetectionRecord is the stored form of one detection
type DetectionRecord struct {
	ID        string          `bson:"_id" json:"id"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	Status    string          `bson:"status" json:"status"`
	Attempts  int             `bson:"attempts" json:"attempts"`
	Request   RequestMetadata `bson:"request" json:"request"`

	ProductName    string `bson:"product_name,omitempty" json:"product_name,omitempty"`
	OverallRating  string `bson:"overall_rating,omitempty" json:"overall_rating,omitempty"`
	ComplianceRate string `bson:"compliance_rate,omitempty" json:"compliance_rate,omitempty"`

	Structured  map[string]any        `bson:"structured,omitempty" json:"structured,omitempty"`
	Narrative   string                `bson:"narrative,omitempty" json:"narrative,omitempty"`
	SourceField string                `bson:"source_field,omitempty" json:"source_field,omitempty"`
	SplitMethod string                `bson:"split_method,omitempty" json:"split_method,omitempty"`
	Metadata    *workflow.RunMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Warning     string                `bson:"warning,omitempty" json:"warning,omitempty"`

	ErrorType    string `bson:"error_type,omitempty" json:"error_type,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`

	// Raw is the provider's output mapping
	Raw map[string]any `bson:"raw,omitempty" json:"raw,omitempty"`
}

// NewDetectionRecord flattens a call outcome into a storable record
func NewDetectionRecord(id string, outcome workflow.CallOutcome, meta RequestMetadata, now time.Time) (*DetectionRecord, error) {
	rec := &DetectionRecord{
		ID:        id,
		CreatedAt: now.UTC(),
		Request:   meta,
	}

	switch o := outcome.(type) {
	case *workflow.Success:
		if o == nil {
			return nil, ErrInvalidOutcome
		}
		rec.Status = StatusSuccess
		if o.Partial {
			rec.Status = StatusPartial
		}
		rec.Attempts = o.Attempts
		rec.Structured = o.Result.Structured
		rec.Narrative = o.Result.Narrative
		rec.SourceField = o.Result.SourceField
		rec.SplitMethod = string(o.Result.Method)
		md := o.Metadata
		rec.Metadata = &md
		rec.Warning = o.Warning
		rec.Raw = o.Raw
		rec.ProductName = summaryValue(o.Result.Structured, keyProductName)
		rec.OverallRating = summaryValue(o.Result.Structured, keyOverallRating)
		rec.ComplianceRate = summaryValue(o.Result.Structured, keyComplianceRate)
	case *workflow.Failure:
		if o == nil {
			return nil, ErrInvalidOutcome
		}
		rec.Status = StatusFailed
		rec.Attempts = o.Attempts
		if o.Err != nil {
			rec.ErrorType = string(o.Err.Type)
			rec.ErrorMessage = o.Err.Error()
		}
		if o.Record != nil {
			md := o.Record.Metadata()
			rec.Metadata = &md
		}
	default:
		return nil, ErrInvalidOutcome
	}
	return rec, nil
}

// summaryValue reads key from the structured report as text
func summaryValue(structured map[string]any, key string) string {
	v, ok := structured[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}
