package persistence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/internal/cache"
)

// CachedSnapshotStore 读穿透缓存：Load 先查 Redis 缓存，未命中时回源并回填
//
// Save / Delete / Cleanup 先写底层存储，再使相关缓存键失效。
type CachedSnapshotStore struct {
	inner  SnapshotStore
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSnapshotStore wraps inner with cache; ttl 0 uses the cache default.
func NewCachedSnapshotStore(inner SnapshotStore, c *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedSnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSnapshotStore{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "cached")),
	}
}

// Close closes the underlying store; the cache belongs to the caller.
func (s *CachedSnapshotStore) Close() error {
	return s.inner.Close()
}

// Ping checks both the store and the cache
func (s *CachedSnapshotStore) Ping(ctx context.Context) error {
	if err := s.inner.Ping(ctx); err != nil {
		return err
	}
	return s.cache.Ping(ctx)
}

// Save writes through to the store and drops the cached copy
func (s *CachedSnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
	if err := s.inner.Save(ctx, id, snap); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Load serves from cache when possible. Concurrent misses for one id share a single store read.
func (s *CachedSnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	var snap kernel.Snapshot
	err := s.cache.GetOrLoad(ctx, cacheKey(id), &snap, s.ttl, func(ctx context.Context) (any, error) {
		return s.inner.Load(ctx, id)
	})
	if errors.Is(err, cache.ErrClosed) {
		s.logger.Warn("snapshot cache closed, reading store directly", zap.String("id", id))
		return s.inner.Load(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Delete removes from the store and the cache
func (s *CachedSnapshotStore) Delete(ctx context.Context, id string) error {
	err := s.inner.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.invalidate(ctx, id)
	return err
}

// List is never cached
func (s *CachedSnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	return s.inner.List(ctx, filter)
}

// Cleanup removes stale snapshots and their cached copies
func (s *CachedSnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	infos, err := s.inner.List(ctx, ListFilter{})
	if err != nil {
		return 0, err
	}
	cutoff := utcNow().Add(-olderThan)
	var stale []string
	for _, info := range infos {
		if info.UpdatedAt.Before(cutoff) {
			stale = append(stale, info.ID)
		}
	}

	n, err := s.inner.Cleanup(ctx, olderThan)
	s.invalidate(ctx, stale...)
	return n, err
}

func cacheKey(id string) string {
	return "snapshot:" + id
}

func (s *CachedSnapshotStore) invalidate(ctx context.Context, ids ...string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("snapshot cache invalidation failed", zap.Strings("ids", ids), zap.Error(err))
	}
}
