package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

const snapshotFileExt = ".json"

// fileEnvelope 单个快照文件的内容
type fileEnvelope struct {
	Info     SnapshotInfo    `json:"info"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// FileSnapshotStore 基于文件的快照存储，每个快照一个 JSON 文件
// 适合单节点生产部署.
type FileSnapshotStore struct {
	baseDir string
	index   map[string]SnapshotInfo // in-memory index
	mu      sync.RWMutex
	closed  bool
	now     func() time.Time
	logger  *zap.Logger
	janitor *janitor
}

// NewFileSnapshotStore 创建文件快照存储并加载已有快照的索引
func NewFileSnapshotStore(config StoreConfig, logger *zap.Logger) (*FileSnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseDir := filepath.Join(config.BaseDir, "snapshots")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot store directory: %w", err)
	}

	s := &FileSnapshotStore{
		baseDir: baseDir,
		index:   make(map[string]SnapshotInfo),
		now:     utcNow,
		logger:  logger.With(zap.String("store", "file")),
	}
	if err := s.loadIndex(); err != nil {
		return nil, fmt.Errorf("failed to load snapshots from disk: %w", err)
	}
	s.janitor = startJanitor(s, config.Cleanup, s.logger)
	return s, nil
}

func (s *FileSnapshotStore) path(id string) string {
	return filepath.Join(s.baseDir, id+snapshotFileExt)
}

// loadIndex 扫描目录，损坏的文件记录警告后跳过
func (s *FileSnapshotStore) loadIndex() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapshotFileExt) {
			continue
		}
		id := strings.TrimSuffix(name, snapshotFileExt)
		env, err := s.readEnvelope(id)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot file", zap.String("file", name), zap.Error(err))
			continue
		}
		s.index[id] = env.Info
	}
	return nil
}

func (s *FileSnapshotStore) readEnvelope(id string) (*fileEnvelope, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &env, nil
}

// 原子写: 写入临时文件后重命名
func (s *FileSnapshotStore) writeEnvelope(id string, env fileEnvelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot file: %w", err)
	}
	target := s.path(id)
	tempPath := target + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, target)
}

// Close closes the store
func (s *FileSnapshotStore) Close() error {
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

// Ping checks the store is open and its directory is reachable
func (s *FileSnapshotStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// Save stores snap under id
func (s *FileSnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
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
	if old, ok := s.index[id]; ok {
		prev = &old
	}
	info := describe(id, snap, prev, s.now())
	if err := s.writeEnvelope(id, fileEnvelope{Info: info, Snapshot: data}); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", id, err)
	}
	s.index[id] = info
	return nil
}

// Load returns the snapshot stored under id
func (s *FileSnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	if err := ValidateID(id); err != nil {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	env, err := s.readEnvelope(id)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(env.Snapshot)
}

// Delete removes the snapshot stored under id
func (s *FileSnapshotStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	return s.remove(id)
}

func (s *FileSnapshotStore) remove(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot %s: %w", id, err)
	}
	delete(s.index, id)
	return nil
}

// List returns snapshot descriptions, most recently updated first
func (s *FileSnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]SnapshotInfo, 0, len(s.index))
	for _, info := range s.index {
		infos = append(infos, info)
	}
	return applyFilter(infos, filter), nil
}

// Cleanup removes snapshots not updated within olderThan
func (s *FileSnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	cutoff := s.now().Add(-olderThan)
	removed := 0
	for id, info := range s.index {
		if !info.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.remove(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
