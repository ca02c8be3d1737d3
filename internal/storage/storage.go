package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrFileNotFound = errors.New("stored file not found")
	ErrInvalidPath  = errors.New("invalid stored file path")
)

// FileStore keeps uploaded label images for the duration of a detection
type FileStore interface {
	// Save stores data under a generated name and returns its path
	Save(ctx context.Context, data []byte, suggestedName string) (string, error)
	// Read returns the bytes stored at path, or ErrFileNotFound
	Read(ctx context.Context, path string) ([]byte, error)
	// Delete removes path; deleting a missing file is not an error
	Delete(ctx context.Context, path string) error
}

// generateName keeps the suggested extension and replaces the rest with a uuid
func generateName(suggestedName string) string {
	ext := strings.ToLower(filepath.Ext(suggestedName))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".pdf":
	default:
		ext = ".jpg"
	}
	return uuid.NewString() + ext
}

func validatePath(path string) error {
	if path == "" || strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	return nil
}
