package validation

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-label-inspector/internal/errors"
)

// DefaultAllowedTypes are the label formats the inspection workflow accepts
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// ContentValidator checks uploaded label files by sniffing their bytes
// rather than trusting the client's declared content type.
type ContentValidator struct {
	allowedTypes []string
	maxBytes     int64
}

// NewContentValidator creates a validator for the default label formats
func NewContentValidator(maxBytes int64) *ContentValidator {
	return &ContentValidator{
		allowedTypes: DefaultAllowedTypes,
		maxBytes:     maxBytes,
	}
}

// DetectedContent is the result of sniffing an upload
type DetectedContent struct {
	MimeType  string
	Extension string
}

// Validate sniffs data and rejects empty, oversized or unsupported files
func (v *ContentValidator) Validate(data []byte) (DetectedContent, error) {
	if len(data) == 0 {
		return DetectedContent{}, apperrors.NewValidationError("uploaded file is empty", nil)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return DetectedContent{}, apperrors.NewValidationError(
			fmt.Sprintf("uploaded file exceeds %d bytes", v.maxBytes), nil)
	}

	mt := mimetype.Detect(data)
	for _, allowed := range v.allowedTypes {
		if mt.Is(allowed) {
			return DetectedContent{MimeType: allowed, Extension: mt.Extension()}, nil
		}
	}
	return DetectedContent{}, apperrors.NewValidationError("unsupported file type", nil).
		WithDetails(mt.String())
}
