package container

import (
	"context"
	"fmt"
	"net/http"

	"go-label-inspector/internal/config"
	"go-label-inspector/internal/factory"
	"go-label-inspector/internal/logger"
	"go-label-inspector/internal/observer"
	"go-label-inspector/internal/repository"
	"go-label-inspector/internal/service"
	"go-label-inspector/internal/storage"
	"go-label-inspector/internal/transport"
	"go-label-inspector/internal/workflow"
	"go-label-inspector/pkg/validation"

	"github.com/sirupsen/logrus"
)

// Container holds all application dependencies
type Container struct {
	config           *config.Config
	workflowClient   *workflow.Client
	fileStore        storage.FileStore
	repository       repository.DetectionRepository
	metrics          *observer.MetricsObserver
	detectionService service.DetectionService
	handler          http.Handler
}

// NewContainer builds the dependency graph for cfg
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	components := factory.NewComponentFactory()

	fileStore, err := components.StorageFactory.CreateStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create file storage: %w", err)
	}
	repo, err := components.RepositoryFactory.CreateRepository(ctx, cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection repository: %w", err)
	}

	workflowClient := workflow.NewClient(cfg.Workflow, validation.NewURLValidator())

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	detectionService := service.NewDetectionService(workflowClient, fileStore, repo, publisher)
	handler := transport.NewHandler(detectionService, metrics, cfg)

	logger.WithFields(logrus.Fields{
		"storage":       cfg.Storage.Type,
		"repository":    cfg.Repository.Type,
		"workflow_url":  cfg.Workflow.BaseURL,
		"response_mode": workflowClient.Mode(),
	}).Info("Container initialized")

	return &Container{
		config:           cfg,
		workflowClient:   workflowClient,
		fileStore:        fileStore,
		repository:       repo,
		metrics:          metrics,
		detectionService: detectionService,
		handler:          handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases backend connections
func (c *Container) Close(ctx context.Context) error {
	if closer, ok := c.repository.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}
