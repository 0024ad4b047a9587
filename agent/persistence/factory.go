package persistence

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/internal/database"
)

type factoryOptions struct {
	logger *zap.Logger
	pool   *database.PoolManager
	redis  redis.UniversalClient
}

// FactoryOption configures NewSnapshotStore
type FactoryOption func(*factoryOptions)

// WithLogger sets the store logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = logger }
}

// WithDatabasePool supplies the pool required by the sql backend
func WithDatabasePool(pool *database.PoolManager) FactoryOption {
	return func(o *factoryOptions) { o.pool = pool }
}

// WithRedisClient reuses an existing client for the redis backend instead of dialing
func WithRedisClient(client redis.UniversalClient) FactoryOption {
	return func(o *factoryOptions) { o.redis = client }
}

// NewSnapshotStore creates a new SnapshotStore based on the configuration
func NewSnapshotStore(config StoreConfig, opts ...FactoryOption) (SnapshotStore, error) {
	o := factoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemorySnapshotStore(config, o.logger), nil
	case StoreTypeFile:
		return NewFileSnapshotStore(config, o.logger)
	case StoreTypeRedis:
		if o.redis != nil {
			return NewRedisSnapshotStoreWithClient(o.redis, config, o.logger), nil
		}
		return NewRedisSnapshotStore(config, o.logger)
	case StoreTypeSQL:
		if o.pool == nil {
			return nil, fmt.Errorf("%w: sql snapshot store requires a database pool", ErrInvalidInput)
		}
		return NewSQLSnapshotStore(o.pool, config, o.logger)
	case StoreTypeMongo:
		return NewMongoSnapshotStore(config, o.logger)
	default:
		return nil, fmt.Errorf("unsupported snapshot store type: %s", config.Type)
	}
}

// MustNewSnapshotStore creates a new SnapshotStore or panics on error.
//
// WARNING: This function should ONLY be used during application initialization
// (e.g., in main() or init()). For runtime store creation, use NewSnapshotStore instead.
func MustNewSnapshotStore(config StoreConfig, opts ...FactoryOption) SnapshotStore {
	store, err := NewSnapshotStore(config, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot store: %v", err))
	}
	return store
}
