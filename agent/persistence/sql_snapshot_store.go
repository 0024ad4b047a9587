package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/internal/database"
)

// SnapshotModel is the GORM row for a stored snapshot.
type SnapshotModel struct {
	ID        string    `gorm:"primaryKey;size:128"`
	KernelID  string    `gorm:"index;size:128"`
	Version   int       `gorm:"not null"`
	Facts     int       `gorm:"not null"`
	Rules     int       `gorm:"not null"`
	Memories  int       `gorm:"not null"`
	Data      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime:false"`
}

// TableName 与迁移文件中的表名一致
func (SnapshotModel) TableName() string {
	return "kernel_snapshots"
}

func (m SnapshotModel) info() SnapshotInfo {
	return SnapshotInfo{
		ID:        m.ID,
		KernelID:  m.KernelID,
		Version:   m.Version,
		Facts:     m.Facts,
		Rules:     m.Rules,
		Memories:  m.Memories,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// sqlTxRetries 死锁、序列化失败等可重试错误的事务重试次数
const sqlTxRetries = 3

// SQLSnapshotStore 基于 GORM 的快照存储，支持 PostgreSQL / MySQL / SQLite
type SQLSnapshotStore struct {
	pool    *database.PoolManager
	now     func() time.Time
	logger  *zap.Logger
	janitor *janitor
}

// NewSQLSnapshotStore creates a snapshot store over pool.
// The kernel_snapshots table comes from the migrations unless config.SQL.AutoMigrate is set.
func NewSQLSnapshotStore(pool *database.PoolManager, config StoreConfig, logger *zap.Logger) (*SQLSnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: database pool is nil", ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SQL.AutoMigrate {
		if err := pool.DB().AutoMigrate(&SnapshotModel{}); err != nil {
			return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
		}
	}
	s := &SQLSnapshotStore{
		pool:   pool,
		now:    utcNow,
		logger: logger.With(zap.String("store", "sql")),
	}
	s.janitor = startJanitor(s, config.Cleanup, s.logger)
	return s, nil
}

// Close stops the cleanup loop; the pool belongs to the caller.
func (s *SQLSnapshotStore) Close() error {
	s.janitor.halt()
	return nil
}

// Ping checks if the store is healthy
func (s *SQLSnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save stores snap under id
func (s *SQLSnapshotStore) Save(ctx context.Context, id string, snap *kernel.Snapshot) error {
	if err := validateSave(id, snap); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	return s.pool.WithTransactionRetry(ctx, sqlTxRetries, func(tx *gorm.DB) error {
		var existing SnapshotModel
		var prev *SnapshotInfo
		err := tx.Where("id = ?", id).Take(&existing).Error
		switch {
		case err == nil:
			info := existing.info()
			prev = &info
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		info := describe(id, snap, prev, s.now())
		row := SnapshotModel{
			ID:        id,
			KernelID:  info.KernelID,
			Version:   info.Version,
			Facts:     info.Facts,
			Rules:     info.Rules,
			Memories:  info.Memories,
			Data:      string(data),
			CreatedAt: info.CreatedAt,
			UpdatedAt: info.UpdatedAt,
		}
		if prev == nil {
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
}

// Load returns the snapshot stored under id
func (s *SQLSnapshotStore) Load(ctx context.Context, id string) (*kernel.Snapshot, error) {
	var row SnapshotModel
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot([]byte(row.Data))
}

// Delete removes the snapshot stored under id
func (s *SQLSnapshotStore) Delete(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&SnapshotModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns snapshot descriptions, most recently updated first
func (s *SQLSnapshotStore) List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error) {
	q := s.pool.DB().WithContext(ctx).
		Model(&SnapshotModel{}).
		Select("id", "kernel_id", "version", "facts", "rules", "memories", "created_at", "updated_at").
		Order("updated_at DESC").
		Order("id ASC")
	if filter.KernelID != "" {
		q = q.Where("kernel_id = ?", filter.KernelID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []SnapshotModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, len(rows))
	for i, row := range rows {
		infos[i] = row.info()
	}
	return infos, nil
}

// Cleanup removes snapshots not updated within olderThan
func (s *SQLSnapshotStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	res := s.pool.DB().WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&SnapshotModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
