package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-label-inspector/internal/workflow"
)

// MemoryRepository keeps detection records in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*DetectionRecord
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*DetectionRecord),
		now:     time.Now,
	}
}

func (r *MemoryRepository) RecordDetection(ctx context.Context, outcome workflow.CallOutcome, meta RequestMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec, err := NewDetectionRecord(uuid.NewString(), outcome, meta, r.now())
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return rec.ID, nil
}

func (r *MemoryRepository) GetDetection(ctx context.Context, id string) (*DetectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrDetectionNotFound
	}
	out := *rec
	return &out, nil
}
