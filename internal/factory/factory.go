package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-label-inspector/internal/config"
	"go-label-inspector/internal/repository"
	"go-label-inspector/internal/storage"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoTimeout = 10 * time.Second

// StorageType represents different types of file storage backends
type StorageType string

const (
	// LocalStorage for the local file system
	LocalStorage StorageType = "local"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
)

// RepositoryType represents different types of detection record stores
type RepositoryType string

const (
	// MemoryRepository keeps records in process memory
	MemoryRepository RepositoryType = "memory"
	// MongoRepository persists records to MongoDB
	MongoRepository RepositoryType = "mongo"
)

// StorageFactory creates file storage implementations
type StorageFactory interface {
	CreateStorage(cfg config.StorageConfig) (storage.FileStore, error)
}

// RepositoryFactory creates detection repositories
type RepositoryFactory interface {
	CreateRepository(ctx context.Context, cfg config.RepositoryConfig) (repository.DetectionRepository, error)
}

// storageFactory implements StorageFactory
type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateStorage creates a storage implementation based on cfg.Type
func (f *storageFactory) CreateStorage(cfg config.StorageConfig) (storage.FileStore, error) {
	switch StorageType(strings.ToLower(cfg.Type)) {
	case LocalStorage, "":
		return storage.NewLocalStorage(cfg.UploadDir)
	case AzureStorage:
		if cfg.AzureAccount == "" || cfg.AzureContainer == "" {
			return nil, fmt.Errorf("azure storage requires an account and a container")
		}
		return storage.NewAzureStorage(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// repositoryFactory implements RepositoryFactory
type repositoryFactory struct{}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory() RepositoryFactory {
	return &repositoryFactory{}
}

// CreateRepository creates a repository based on cfg.Type. A mongo repository
// is connected and pinged before it is returned.
func (f *repositoryFactory) CreateRepository(ctx context.Context, cfg config.RepositoryConfig) (repository.DetectionRepository, error) {
	switch RepositoryType(strings.ToLower(cfg.Type)) {
	case MemoryRepository, "":
		return repository.NewMemoryRepository(), nil
	case MongoRepository:
		repo, err := newMongoRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", cfg.Type)
	}
}

func newMongoRepository(ctx context.Context, cfg config.RepositoryConfig) (*repository.MongoRepository, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("mongo repository requires a connection URI")
	}

	cctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	repo, err := repository.NewMongoRepository(cctx, repository.MongoOptions{
		Client:     client,
		Database:   cfg.Database,
		Collection: cfg.Collection,
		Timeout:    mongoTimeout,
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := repo.Ping(cctx); err != nil {
		_ = repo.Close(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return repo, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory    StorageFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:    NewStorageFactory(),
		RepositoryFactory: NewRepositoryFactory(),
	}
}
