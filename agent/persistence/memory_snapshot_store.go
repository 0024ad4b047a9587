package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

type storedSnapshot struct {
	info SnapshotInfo
	data []byte
}

// MemorySnapshotStore 内存快照存储，适合开发与测试
//
// 快照以编码后的 JSON 保存，Load 每次返回独立副本。
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]storedSnapshot
	closed    bool
	now       func() time.Time
	janitor   *janitor
}

// NewMemorySnapshotStore creates an in-memory snapshot store.
func NewMemorySnapshotStore(config StoreConfig, logger *zap.Logger) *MemorySnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemorySnapshotStore{
		snapshots: make(map[string]storedSnapshot),
		now:       utcNow,
	}
	s.janitor = startJanitor(s, config.Cleanup, logger.With(zap.String("store", "memory")))
	return s
}

// Close closes the store
func (s *MemorySnapshotStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.janitor.halt()
	return nil
}

// Ping checks if the store is healthy
func (s *MemorySnapshotStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save stores snap under id
func (s *MemorySnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
	if err := validateSave(id, snap); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	var prev *SnapshotInfo
	if old, ok := s.snapshots[id]; ok {
		prev = &old.info
	}
	s.snapshots[id] = storedSnapshot{info: describe(id, snap, prev, s.now()), data: data}
	return nil
}

// Load returns the snapshot stored under id
func (s *MemorySnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	stored, ok := s.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSnapshot(stored.data)
}

// Delete removes the snapshot stored under id
func (s *MemorySnapshotStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.snapshots[id]; !ok {
		return ErrNotFound
	}
	delete(s.snapshots, id)
	return nil
}

// List returns snapshot descriptions, most recently updated first
func (s *MemorySnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]SnapshotInfo, 0, len(s.snapshots))
	for _, stored := range s.snapshots {
		infos = append(infos, stored.info)
	}
	return applyFilter(infos, filter), nil
}

// Cleanup removes snapshots not updated within olderThan
func (s *MemorySnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	cutoff := s.now().Add(-olderThan)
	removed := 0
	for id, stored := range s.snapshots {
		if stored.info.UpdatedAt.Before(cutoff) {
			delete(s.snapshots, id)
			removed++
		}
	}
	return removed, nil
}
