package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

// snapshotDocument 快照文档，data 字段保存 JSON 编码的快照
type snapshotDocument struct {
	ID        string    `bson:"_id"`
	KernelID  string    `bson:"kernel_id"`
	Version   int       `bson:"version"`
	Facts     int       `bson:"facts"`
	Rules     int       `bson:"rules"`
	Memories  int       `bson:"memories"`
	Data      string    `bson:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d snapshotDocument) info() SnapshotInfo {
	return SnapshotInfo{
		ID:        d.ID,
		KernelID:  d.KernelID,
		Version:   d.Version,
		Facts:     d.Facts,
		Rules:     d.Rules,
		Memories:  d.Memories,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func newSnapshotDocument(info SnapshotInfo, data []byte) snapshotDocument {
	return snapshotDocument{
		ID:        info.ID,
		KernelID:  info.KernelID,
		Version:   info.Version,
		Facts:     info.Facts,
		Rules:     info.Rules,
		Memories:  info.Memories,
		Data:      string(data),
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}
}

// infoProjection 列表查询不取 data
var infoProjection = bson.D{{Key: "data", Value: 0}}

// MongoSnapshotStore 基于 MongoDB 的快照存储，每个快照一个文档
type MongoSnapshotStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
	janitor    *janitor
}

// mongoNow MongoDB 时间精度为毫秒
func mongoNow() time.Time {
	return utcNow().Truncate(time.Millisecond)
}

// NewMongoSnapshotStore connects to MongoDB, retrying the initial ping with
// exponential backoff, and ensures the list indexes exist.
func NewMongoSnapshotStore(config StoreConfig, logger *zap.Logger) (*MongoSnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := config.Mongo
	if mc.URI == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", ErrInvalidInput)
	}
	def := DefaultStoreConfig().Mongo
	if mc.Database == "" {
		mc.Database = def.Database
	}
	if mc.Collection == "" {
		mc.Collection = def.Collection
	}
	if mc.Timeout <= 0 {
		mc.Timeout = def.Timeout
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(mc.URI).
		SetConnectTimeout(mc.Timeout).
		SetServerSelectionTimeout(mc.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	s := &MongoSnapshotStore{
		client:     client,
		collection: client.Database(mc.Database).Collection(mc.Collection),
		timeout:    mc.Timeout,
		now:        mongoNow,
		logger: logger.With(zap.String("store", "mongo"),
			zap.String("database", mc.Database),
			zap.String("collection", mc.Collection)),
	}

	if err := s.pingWithRetry(config.Retry); err != nil {
		_ = s.disconnect()
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := s.ensureIndexes(); err != nil {
		_ = s.disconnect()
		return nil, err
	}

	s.janitor = startJanitor(s, config.Cleanup, s.logger)
	s.logger.Info("mongo snapshot store ready")
	return s, nil
}

func (s *MongoSnapshotStore) pingWithRetry(retry RetryConfig) error {
	var err error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == retry.MaxRetries {
			break
		}
		backoff := retry.CalculateBackoff(attempt)
		s.logger.Warn("mongo ping failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
	}
	return err
}

func (s *MongoSnapshotStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "kernel_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot indexes: %w", err)
	}
	return nil
}

func (s *MongoSnapshotStore) disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Close stops the cleanup loop and disconnects
func (s *MongoSnapshotStore) Close() error {
	s.janitor.halt()
	return s.disconnect()
}

// Ping checks if the primary is reachable
func (s *MongoSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoSnapshotStore) getInfo(ctx context.Context, id string) (*SnapshotInfo, error) {
	var doc snapshotDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}},
		options.FindOne().SetProjection(infoProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info := doc.info()
	return &info, nil
}

// Save stores snap under id
func (s *MongoSnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
	if err := validateSave(id, snap); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	prev, err := s.getInfo(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	doc := newSnapshotDocument(describe(id, snap, prev, s.now()), data)

	_, err = s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot stored under id
func (s *MongoSnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	var doc snapshotDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot([]byte(doc.Data))
}

// Delete removes the snapshot stored under id
func (s *MongoSnapshotStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns snapshot descriptions, most recently updated first
func (s *MongoSnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	query := bson.D{}
	if filter.KernelID != "" {
		query = append(query, bson.E{Key: "kernel_id", Value: filter.KernelID})
	}
	opts := options.Find().
		SetProjection(infoProjection).
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var docs []snapshotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, d.info())
	}
	return applyFilter(infos, filter), nil
}

// Cleanup removes snapshots not updated within olderThan
func (s *MongoSnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	res, err := s.collection.DeleteMany(ctx, bson.D{{Key: "updated_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
