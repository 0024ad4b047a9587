// Package persistence provides storage for kernel snapshots.
//
// Supported backends:
// - Memory: For development and testing (default)
// - File: For single-node production deployments
// - Redis: For distributed production deployments
// - SQL: PostgreSQL / MySQL / SQLite through GORM
// - Mongo: MongoDB collection, one document per snapshot
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
	ErrCorrupted    = errors.New("stored snapshot is corrupted")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// RetryConfig defines retry behavior when connecting to a remote backend
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialBackoff is the initial backoff duration (default: 1s)
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration (default: 30s)
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
// Conservative strategy: max 3 retries with exponential backoff 1s/2s/4s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}

// CleanupConfig defines removal of stale snapshots
type CleanupConfig struct {
	// Enabled determines if automatic cleanup is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is how often cleanup runs (default: 1h)
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Retention is how long a snapshot is kept after its last update (default: 7d)
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// DefaultCleanupConfig returns the default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:   false,
		Interval:  1 * time.Hour,
		Retention: 7 * 24 * time.Hour,
	}
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// SQL configuration (only used when Type is "sql")
	SQL SQLStoreConfig `json:"sql" yaml:"sql"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo"`

	// Retry configuration
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Cleanup configuration
	Cleanup CleanupConfig `json:"cleanup" yaml:"cleanup"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// SQLStoreConfig contains SQL-specific configuration
type SQLStoreConfig struct {
	// AutoMigrate creates the snapshot table through GORM instead of the migration files
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	// URI is the connection string, e.g. mongodb://localhost:27017
	URI string `json:"uri" yaml:"uri"`

	// Database is the database name (default: agentkernel)
	Database string `json:"database" yaml:"database"`

	// Collection holds one document per snapshot (default: kernel_snapshots)
	Collection string `json:"collection" yaml:"collection"`

	// Timeout bounds connecting and each ping (default: 10s)
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/snapshots",
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentkernel:",
		},
		Mongo: MongoStoreConfig{
			Database:   "agentkernel",
			Collection: "kernel_snapshots",
			Timeout:    10 * time.Second,
		},
		Retry:   DefaultRetryConfig(),
		Cleanup: DefaultCleanupConfig(),
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// SnapshotInfo describes a stored snapshot without its payload
type SnapshotInfo struct {
	ID        string    `json:"id"`
	KernelID  string    `json:"kernel_id"`
	Version   int       `json:"version"`
	Facts     int       `json:"facts"`
	Rules     int       `json:"rules"`
	Memories  int       `json:"memories"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List results
type ListFilter struct {
	// KernelID keeps only snapshots taken from this kernel
	KernelID string `json:"kernel_id,omitempty"`

	// Limit caps the number of results, 0 means no limit
	Limit int `json:"limit,omitempty"`
}

// SnapshotStore persists kernel snapshots under caller-chosen IDs
type SnapshotStore interface {
	Store

	// Save stores snap under id, replacing any previous snapshot with that id
	Save(ctx context.Context, id string, snap *kernel.Snapshot) error

	// Load returns the snapshot stored under id, or ErrNotFound
	Load(ctx context.Context, id string) (*kernel.Snapshot, error)

	// Delete removes the snapshot stored under id, or returns ErrNotFound
	Delete(ctx context.Context, id string) error

	// List returns snapshot descriptions, most recently updated first
	List(ctx context.Context, filter ListFilter) ([]SnapshotInfo, error)

	// Cleanup removes snapshots not updated within olderThan and reports how many were removed
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateID checks that id is usable as a key by every backend (including as a file name)
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: snapshot id %q must match %s", ErrInvalidInput, id, idPattern.String())
	}
	return nil
}

func validateSave(id string, snap *kernel.Snapshot) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrInvalidInput)
	}
	return nil
}

// describe builds the info for snap; CreatedAt is carried over from prev when present.
func describe(id string, snap *kernel.Snapshot, prev *SnapshotInfo, now time.Time) SnapshotInfo {
	memories := 0
	for _, t := range types.AllMemoryCategories {
		memories += len(snap.Memory[t])
	}
	info := SnapshotInfo{
		ID:        id,
		KernelID:  snap.KernelID,
		Version:   snap.Version,
		Facts:     len(snap.Facts),
		Rules:     len(snap.Rules),
		Memories:  memories,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev != nil {
		info.CreatedAt = prev.CreatedAt
	}
	return info
}

func encodeSnapshot(snap *kernel.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*kernel.Snapshot, error) {
	var snap kernel.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return &snap, nil
}

// applyFilter sorts infos most recently updated first and applies filter.
func applyFilter(infos []SnapshotInfo, filter ListFilter) []SnapshotInfo {
	out := make([]SnapshotInfo, 0, len(infos))
	for _, info := range infos {
		if filter.KernelID != "" && info.KernelID != filter.KernelID {
			continue
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func utcNow() time.Time {
	return time.Now().UTC()
}
