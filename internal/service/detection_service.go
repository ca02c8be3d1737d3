package service

import (
	"context"
	"errors"
	"time"

	apperrors "go-label-inspector/internal/errors"
	"go-label-inspector/internal/logger"
	"go-label-inspector/internal/observer"
	"go-label-inspector/internal/repository"
	"go-label-inspector/internal/storage"
	"go-label-inspector/internal/workflow"
	"go-label-inspector/pkg/models"

	"github.com/sirupsen/logrus"
)

const persistTimeout = 10 * time.Second

// Invoker runs the inspection workflow
type Invoker interface {
	Invoke(ctx context.Context, req workflow.DetectionRequest, mode workflow.ResponseMode) workflow.CallOutcome
	Probe(ctx context.Context) (workflow.ProbeResult, error)
	Mode() workflow.ResponseMode
}

// DetectionInput is one detection request as received from a client
type DetectionInput struct {
	ImageData          []byte
	FileName           string
	ContentType        string
	ImageURL           string
	FoodType           string
	PackageFoodType    string
	SingleOrMulti      string
	PackageSize        string
	DetectionTime      string
	SpecialRequirement string
	ClientIP           string
	CorrelationID      string
}

// DetectionService defines label detection operations
type DetectionService interface {
	// RunDetection stores the image, calls the workflow and records the outcome.
	// The response is returned even when the call failed; err is then the
	// classified failure.
	RunDetection(ctx context.Context, in DetectionInput) (*models.DetectionResponse, error)

	// GetDetection loads a stored detection record
	GetDetection(ctx context.Context, id string) (*repository.DetectionRecord, error)

	// CheckWorkflow probes the workflow service
	CheckWorkflow(ctx context.Context) (*models.WorkflowCheckResponse, error)

	// Ready pings the detection repository when its backend supports it
	Ready(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type detectionService struct {
	invoker Invoker
	store   storage.FileStore
	repo    repository.DetectionRepository
	events  observer.Subject
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	invoker Invoker,
	store storage.FileStore,
	repo repository.DetectionRepository,
	events observer.Subject,
) DetectionService {
	return &detectionService{
		invoker: invoker,
		store:   store,
		repo:    repo,
		events:  events,
	}
}

func (s *detectionService) RunDetection(ctx context.Context, in DetectionInput) (*models.DetectionResponse, error) {
	start := time.Now()

	if len(in.ImageData) == 0 && in.ImageURL == "" {
		return nil, apperrors.NewValidationError("an image file or image URL is required", nil)
	}

	transfer := "remote_url"
	if len(in.ImageData) > 0 {
		transfer = "local_file"
	}
	s.events.NotifyObservers(ctx, observer.DetectionEvent{
		EventType:      observer.DetectionStarted,
		FoodType:       in.FoodType,
		TransferMethod: transfer,
	})

	req := workflow.DetectionRequest{
		Image:           workflow.ImageSource{URL: in.ImageURL},
		FoodType:        in.FoodType,
		PackageFoodType: in.PackageFoodType,
		SingleOrMulti:   in.SingleOrMulti,
		PackageSize:     in.PackageSize,
		CorrelationID:   in.CorrelationID,
	}
	if len(in.ImageData) > 0 {
		// Uploaded bytes take precedence over a URL
		req.Image.URL = ""
		data, cleanup, err := s.stage(ctx, in)
		if err != nil {
			s.notifyFailure(ctx, "", in, time.Since(start), 0, err)
			return nil, err
		}
		defer cleanup()
		req.Image.Data = data
		req.Image.FileName = in.FileName
	}

	outcome := s.invoker.Invoke(ctx, req, s.invoker.Mode())
	elapsed := time.Since(start)

	meta := repository.RequestMetadata{
		FileName:           in.FileName,
		ImageURL:           req.Image.URL,
		FileSize:           len(in.ImageData),
		ContentType:        in.ContentType,
		FoodType:           in.FoodType,
		PackageFoodType:    in.PackageFoodType,
		SingleOrMulti:      in.SingleOrMulti,
		PackageSize:        in.PackageSize,
		DetectionTime:      in.DetectionTime,
		SpecialRequirement: in.SpecialRequirement,
		ClientIP:           in.ClientIP,
		ProcessingTime:     elapsed,
	}
	id := s.persist(ctx, outcome, meta)

	resp := &models.DetectionResponse{
		DetectionID:      id,
		Attempts:         outcome.AttemptCount(),
		TransferMethod:   transfer,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}

	switch o := outcome.(type) {
	case *workflow.Success:
		resp.Success = true
		resp.Partial = o.Partial
		resp.Warning = o.Warning
		resp.JSONData = o.Result.Structured
		resp.MarkdownContent = o.Result.Narrative
		resp.SourceField = o.Result.SourceField
		resp.SplitMethod = string(o.Result.Method)
		md := o.Metadata
		resp.Metadata = &md
		resp.Outputs = o.Raw

		s.events.NotifyObservers(ctx, observer.DetectionEvent{
			EventType:      observer.DetectionCompleted,
			DetectionID:    id,
			FoodType:       in.FoodType,
			TransferMethod: transfer,
			ProcessingTime: elapsed,
			Attempts:       o.Attempts,
			Success:        true,
			Partial:        o.Partial,
		})
		return resp, nil

	case *workflow.Failure:
		resp.Error = &models.ErrorResponse{
			Error:       "detection failed",
			Message:     o.Err.Message,
			Type:        string(o.Err.Type),
			Details:     o.Err.Details,
			DetectionID: id,
		}
		s.notifyFailure(ctx, id, in, elapsed, o.Attempts, o.Err)
		return resp, o.Err

	default:
		return nil, apperrors.NewInternalError("workflow returned no outcome", nil)
	}
}

// stage writes the upload to file storage and reads it back for transfer.
// The returned cleanup removes the stored file.
func (s *detectionService) stage(ctx context.Context, in DetectionInput) ([]byte, func(), error) {
	path, err := s.store.Save(ctx, in.ImageData, in.FileName)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to store uploaded image", err)
	}
	cleanup := func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := s.store.Delete(dctx, path); err != nil {
			logger.WithError(err).WithField("path", path).Warn("Failed to remove stored image")
		}
	}

	s.events.NotifyObservers(ctx, observer.DetectionEvent{
		EventType: observer.ImageStored,
		FoodType:  in.FoodType,
		Metadata:  map[string]interface{}{"path": path, "size": len(in.ImageData)},
	})

	data, err := s.store.Read(ctx, path)
	if err != nil {
		cleanup()
		return nil, nil, apperrors.NewInternalError("failed to read stored image", err)
	}
	return data, cleanup, nil
}

// persist records the outcome. Persistence failures are logged and reported
// to observers but never change the caller's result.
func (s *detectionService) persist(ctx context.Context, outcome workflow.CallOutcome, meta repository.RequestMetadata) string {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id, err := s.repo.RecordDetection(pctx, outcome, meta)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"food_type": meta.FoodType,
			"file_name": meta.FileName,
		}).Error("Failed to persist detection record")
		s.events.NotifyObservers(ctx, observer.DetectionEvent{
			EventType:    observer.RecordPersistFailed,
			FoodType:     meta.FoodType,
			ErrorMessage: err.Error(),
		})
		return ""
	}
	return id
}

func (s *detectionService) notifyFailure(ctx context.Context, id string, in DetectionInput, elapsed time.Duration, attempts int, err error) {
	s.events.NotifyObservers(ctx, observer.DetectionEvent{
		EventType:      observer.DetectionFailed,
		DetectionID:    id,
		FoodType:       in.FoodType,
		ProcessingTime: elapsed,
		Attempts:       attempts,
		ErrorType:      string(apperrors.TypeOf(err)),
		ErrorMessage:   err.Error(),
	})
}

func (s *detectionService) GetDetection(ctx context.Context, id string) (*repository.DetectionRecord, error) {
	rec, err := s.repo.GetDetection(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDetectionNotFound) {
			return nil, apperrors.NewNotFoundError("detection record not found", err)
		}
		return nil, apperrors.NewInternalError("failed to load detection record", err)
	}
	return rec, nil
}

func (s *detectionService) CheckWorkflow(ctx context.Context) (*models.WorkflowCheckResponse, error) {
	res, err := s.invoker.Probe(ctx)
	resp := &models.WorkflowCheckResponse{
		Reachable:    res.Reachable,
		StatusCode:   res.StatusCode,
		LatencyMs:    res.Latency.Milliseconds(),
		ResponseMode: string(res.Mode),
	}
	if err != nil {
		resp.Message = err.Error()
		return resp, err
	}
	resp.Message = "workflow service reachable"
	return resp, nil
}

func (s *detectionService) Ready(ctx context.Context) error {
	p, ok := s.repo.(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return apperrors.NewInternalError("detection repository unavailable", err)
	}
	return nil
}
