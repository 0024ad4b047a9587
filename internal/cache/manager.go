package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss reports whether err is a miss rather than a Redis failure.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Observer 接收命中/未命中事件，通常由 metrics.Collector 实现
type Observer interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Config 缓存参数。Redis 连接由调用方创建并持有。
type Config struct {
	// Name 指标与日志中的缓存名
	Name string `yaml:"name" json:"name"`
	// KeyPrefix 自动加在所有键前，SCAN 统计也只看该前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// DefaultTTL 在 Set 传入 0 时使用；为 0 表示不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

func DefaultConfig() Config {
	return Config{
		Name:       "snapshot",
		KeyPrefix:  "agentkernel:cache:",
		DefaultTTL: 5 * time.Minute,
	}
}

type Option func(*Manager)

// WithObserver 设置命中/未命中观察者
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// =============================================================================
// 💾 Manager
// =============================================================================

// Manager 是 Redis 上的 JSON 读穿透缓存。同一个键的并发回源通过
// singleflight 合并为一次加载。
type Manager struct {
	client   redis.UniversalClient
	config   Config
	logger   *zap.Logger
	observer Observer
	flight   singleflight.Group

	hits, misses, fills, errs atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewManager wraps client; Close does not close it.
func NewManager(client redis.UniversalClient, config Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "default"
	}
	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache"), zap.String("cache", config.Name)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) key(k string) string { return m.config.KeyPrefix + k }

func (m *Manager) open() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Manager) hit() {
	m.hits.Add(1)
	if m.observer != nil {
		m.observer.RecordCacheHit(m.config.Name)
	}
}

func (m *Manager) miss() {
	m.misses.Add(1)
	if m.observer != nil {
		m.observer.RecordCacheMiss(m.config.Name)
	}
}

// Get 读取 key 并解码到 dest；不存在时返回 ErrCacheMiss。
// 无法解码的值视为未命中并被删除，下一次读取会回源。
func (m *Manager) Get(ctx context.Context, key string, dest any) error {
	if err := m.open(); err != nil {
		return err
	}
	raw, err := m.client.Get(ctx, m.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		m.miss()
		return ErrCacheMiss
	case err != nil:
		m.errs.Add(1)
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		m.errs.Add(1)
		m.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = m.client.Del(ctx, m.key(key)).Err()
		m.miss()
		return ErrCacheMiss
	}
	m.hit()
	return nil
}

// Set 编码 value 写入 key；ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := m.open(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.client.Set(ctx, m.key(key), raw, ttl).Err(); err != nil {
		m.errs.Add(1)
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GetOrLoad 命中时直接解码；未命中时调用 load 并回填。并发的同键调用共享一次 load。
// 回填失败只记日志，load 的结果仍然返回。Redis 读取出错时同样回源。
func (m *Manager) GetOrLoad(ctx context.Context, key string, dest any, ttl time.Duration, load func(context.Context) (any, error)) error {
	err := m.Get(ctx, key, dest)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed):
		return err
	case !IsCacheMiss(err):
		m.logger.Warn("cache read failed, loading from source", zap.String("key", key), zap.Error(err))
	}

	v, err, shared := m.flight.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.Set(ctx, key, v, ttl); err != nil {
			m.logger.Warn("cache fill failed", zap.String("key", key), zap.Error(err))
		} else {
			m.fills.Add(1)
		}
		return v, nil
	})
	if err != nil {
		return err
	}
	if shared {
		m.logger.Debug("cache load shared", zap.String("key", key))
	}
	return assign(v, dest)
}

// assign 把 load 结果复制到 dest。共享结果的调用方各自得到一份解码副本，互不别名。
func assign(v, dest any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Delete 删除若干键，不存在的键忽略
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.open(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
		m.flight.Forget(k)
	}
	if err := m.client.Del(ctx, full...).Err(); err != nil {
		m.errs.Add(1)
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// TTL 返回剩余过期时间（毫秒精度）；键不存在时返回 ErrCacheMiss，未设置过期返回 -1
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := m.open(); err != nil {
		return 0, err
	}
	d, err := m.client.PTTL(ctx, m.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache ttl %s: %w", key, err)
	}
	if d == -2 {
		return 0, ErrCacheMiss
	}
	if d < 0 {
		return -1, nil
	}
	return d, nil
}

func (m *Manager) Ping(ctx context.Context) error {
	if err := m.open(); err != nil {
		return err
	}
	return m.client.Ping(ctx).Err()
}

// Close 标记关闭，之后所有操作返回 ErrClosed
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.logger.Debug("cache manager closed",
			zap.Uint64("hits", m.hits.Load()), zap.Uint64("misses", m.misses.Load()))
	}
	return nil
}

// =============================================================================
// 📊 统计
// =============================================================================

type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Fills   uint64  `json:"fills"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
	// Keys 当前前缀下的键数量（SCAN 统计）
	Keys int64 `json:"keys"`
}

const scanBatch = 256

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	if err := m.open(); err != nil {
		return nil, err
	}
	var keys int64
	iter := m.client.Scan(ctx, 0, m.config.KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}

	st := &Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Fills:  m.fills.Load(),
		Errors: m.errs.Load(),
		Keys:   keys,
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st, nil
}
