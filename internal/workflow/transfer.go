package workflow

import (
	"context"

	apperrors "go-label-inspector/internal/errors"
)

// TransferDescriptor describes how the image reaches the workflow service.
// The only implementations are RemoteReference and UploadedReference.
type TransferDescriptor interface {
	fileInput() fileInput
	Method() string
}

// RemoteReference lets the workflow fetch the image itself
type RemoteReference struct {
	URL string
}

func (r RemoteReference) fileInput() fileInput {
	return fileInput{Type: "image", TransferMethod: "remote_url", URL: r.URL}
}

func (r RemoteReference) Method() string { return "remote_url" }

// UploadedReference points at a file previously uploaded to the workflow service
type UploadedReference struct {
	File FileHandle
}

func (r UploadedReference) fileInput() fileInput {
	return fileInput{Type: "image", TransferMethod: "local_file", UploadFileID: r.File.ID}
}

func (r UploadedReference) Method() string { return "local_file" }

// URLChecker reports whether a location is an acceptable remote image URL
type URLChecker interface {
	ValidateImageURL(imageURL string) error
}

// TransferSelector decides between passing a URL through and uploading bytes
type TransferSelector struct {
	validator URLChecker
	uploader  Uploader
}

func NewTransferSelector(validator URLChecker, uploader Uploader) *TransferSelector {
	return &TransferSelector{validator: validator, uploader: uploader}
}

// SelectTransfer makes no network call for URLs; byte payloads are uploaded once.
func (s *TransferSelector) SelectTransfer(ctx context.Context, src ImageSource, user string) (TransferDescriptor, error) {
	if src.URL != "" && s.validator.ValidateImageURL(src.URL) == nil {
		return RemoteReference{URL: src.URL}, nil
	}

	if len(src.Data) == 0 {
		if src.URL != "" {
			return nil, apperrors.NewValidationError("image location is neither an http(s) URL nor readable data", nil)
		}
		return nil, apperrors.NewValidationError("image payload is empty", nil)
	}

	handle, err := s.uploader.Upload(ctx, src.Data, src.FileName, user)
	if err != nil {
		return nil, err
	}
	return UploadedReference{File: handle}, nil
}
