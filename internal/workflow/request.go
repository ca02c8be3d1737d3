package workflow

import (
	"strings"

	"github.com/google/uuid"
)

// ResponseMode selects how the workflow service delivers its result
type ResponseMode string

const (
	ModeBlocking  ResponseMode = "blocking"
	ModeStreaming ResponseMode = "streaming"
)

// ParseResponseMode maps a configured value to a mode, defaulting to streaming
func ParseResponseMode(s string) ResponseMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeBlocking)) {
		return ModeBlocking
	}
	return ModeStreaming
}

// ImageSource is either a remote URL or raw bytes with a file name
type ImageSource struct {
	URL      string
	Data     []byte
	FileName string
}

// DetectionRequest is one label inspection call
type DetectionRequest struct {
	Image           ImageSource
	FoodType        string
	PackageFoodType string
	SingleOrMulti   string
	PackageSize     string
	CorrelationID   string
}

// fileInput is the element of the TagImage input list
type fileInput struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

type workflowInputs struct {
	TagImage        []fileInput `json:"TagImage"`
	FoodType        string      `json:"Foodtype"`
	PackageFoodType string      `json:"PackageFoodType"`
	SingleOrMulti   string      `json:"SingleOrMulti"`
	PackageSize     string      `json:"PackageSize"`
}

type runRequest struct {
	Inputs       workflowInputs `json:"inputs"`
	ResponseMode ResponseMode   `json:"response_mode"`
	User         string         `json:"user"`
}

func buildRunRequest(req DetectionRequest, td TransferDescriptor, mode ResponseMode, user string) runRequest {
	return runRequest{
		Inputs: workflowInputs{
			TagImage:        []fileInput{td.fileInput()},
			FoodType:        req.FoodType,
			PackageFoodType: req.PackageFoodType,
			SingleOrMulti:   req.SingleOrMulti,
			PackageSize:     req.PackageSize,
		},
		ResponseMode: mode,
		User:         user,
	}
}

// newUserToken returns a short per-call user identifier
func newUserToken() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "user-" + id[:8]
}
