package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	apperrors "go-label-inspector/internal/errors"
	"go-label-inspector/internal/logger"

	"github.com/sirupsen/logrus"
)

// FileHandle is the workflow service's record of an uploaded file
type FileHandle struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

// Uploader transfers image bytes to the workflow service
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, user string) (FileHandle, error)
}

// MimeTypeFor maps a file name to the content type declared on upload
func MimeTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}

// HTTPUploader posts multipart uploads to {base}/files/upload
type HTTPUploader struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewHTTPUploader(client *http.Client, baseURL, apiKey string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

// Upload performs exactly one attempt and succeeds only on 201 Created.
func (u *HTTPUploader) Upload(ctx context.Context, data []byte, fileName, user string) (FileHandle, error) {
	if fileName == "" {
		fileName = "image.jpg"
	}

	body, contentType, err := encodeUpload(data, fileName, user)
	if err != nil {
		return FileHandle{}, apperrors.NewUploadError("failed to encode upload body", err)
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/files/upload", body)
	if err != nil {
		return FileHandle{}, apperrors.NewUploadError("invalid upload URL", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return FileHandle{}, apperrors.NewUploadError("upload timed out", err)
		}
		return FileHandle{}, apperrors.NewUploadError("upload request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return FileHandle{}, apperrors.NewUploadError("failed to read upload response", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return FileHandle{}, apperrors.NewUploadError(
			fmt.Sprintf("upload rejected with status %d", resp.StatusCode), nil,
		).WithDetails(truncate(string(raw), 512))
	}

	var handle FileHandle
	if err := json.Unmarshal(raw, &handle); err != nil {
		return FileHandle{}, apperrors.NewUploadError("failed to decode upload response", err)
	}
	if handle.ID == "" {
		return FileHandle{}, apperrors.NewUploadError("upload response has no file id", nil).
			WithDetails(truncate(string(raw), 512))
	}

	logger.WithFields(logrus.Fields{
		"file_id":     handle.ID,
		"file_name":   fileName,
		"size":        len(data),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Image uploaded to workflow service")

	return handle, nil
}

func encodeUpload(data []byte, fileName, user string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(fileName)))
	h.Set("Content-Type", MimeTypeFor(fileName))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("user", user); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
