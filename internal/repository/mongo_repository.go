package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"go-label-inspector/internal/workflow"
)

const defaultOpTimeout = 5 * time.Second

// MongoOptions configures the MongoDB detection repository
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoRepository stores detection records in a MongoDB collection
type MongoRepository struct {
	mongo   *mongodriver.Client
	records collection
	timeout time.Duration
	now     func() time.Time
}

// NewMongoRepository creates the repository and ensures its indexes
func NewMongoRepository(ctx context.Context, opts MongoOptions) (*MongoRepository, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" || opts.Collection == "" {
		return nil, errors.New("database and collection names are required")
	}

	coll := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(opts.Collection)}
	repo := newMongoRepositoryWithCollection(opts.Client, coll, opts.Timeout)

	ictx, cancel := repo.withTimeout(ctx)
	defer cancel()
	if err := ensureIndexes(ictx, coll); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return repo, nil
}

func newMongoRepositoryWithCollection(client *mongodriver.Client, coll collection, timeout time.Duration) *MongoRepository {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &MongoRepository{
		mongo:   client,
		records: coll,
		timeout: timeout,
		now:     time.Now,
	}
}

func (r *MongoRepository) RecordDetection(ctx context.Context, outcome workflow.CallOutcome, meta RequestMetadata) (string, error) {
	rec, err := NewDetectionRecord(uuid.NewString(), outcome, meta, r.now())
	if err != nil {
		return "", err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.records.InsertOne(ctx, rec); err != nil {
		return "", fmt.Errorf("insert detection record: %w", err)
	}
	return rec.ID, nil
}

func (r *MongoRepository) GetDetection(ctx context.Context, id string) (*DetectionRecord, error) {
	if id == "" {
		return nil, ErrDetectionNotFound
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var rec DetectionRecord
	if err := r.records.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, ErrDetectionNotFound
		}
		return nil, fmt.Errorf("load detection record: %w", err)
	}
	return &rec, nil
}

// Ping checks connectivity to the primary
func (r *MongoRepository) Ping(ctx context.Context) error {
	if r.mongo == nil {
		return ErrRepositoryUnavailable
	}
	return r.mongo.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client
func (r *MongoRepository) Close(ctx context.Context) error {
	if r.mongo == nil {
		return nil
	}
	return r.mongo.Disconnect(ctx)
}

func (r *MongoRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	models := []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "product_name", Value: 1}}},
	}
	for _, m := range models {
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
