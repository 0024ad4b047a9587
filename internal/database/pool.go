package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

const (
	healthProbeTimeout = 5 * time.Second
	retryBaseDelay     = 50 * time.Millisecond
	retryMaxDelay      = 2 * time.Second
)

// PoolConfig 快照存储使用的连接池参数
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// HealthCheckInterval 为 0 时不启动后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 快照写入并发很低，默认值偏保守
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        2,
		MaxOpenConns:        10,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	case c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 || c.HealthCheckInterval < 0:
		return fmt.Errorf("pool durations must not be negative")
	}
	return nil
}

// HealthStatus 最近一次后台探活的结果
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	CheckedAt           time.Time `json:"checked_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// =============================================================================
// 🗄️ PoolManager
// =============================================================================

// PoolManager 持有 GORM 句柄与底层 sql.DB，负责连接池参数、后台探活与事务重试。
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	health HealthStatus

	stop chan struct{}
	done chan struct{}
}

// NewPoolManager 应用连接池参数；HealthCheckInterval > 0 时启动探活 goroutine，Close 时停止。
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "db_pool")),
		health: HealthStatus{Healthy: true},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go pm.probeLoop()
	} else {
		close(pm.done)
	}

	pm.logger.Info("database pool ready",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Duration("health_check_interval", config.HealthCheckInterval))
	return pm, nil
}

func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 直接探测数据库，不更新 Health 记录
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	closed := pm.closed
	pm.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Health 返回最近一次后台探活结果
func (pm *PoolManager) Health() HealthStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.health
}

// Close 等待探活 goroutine 退出后关闭连接；重复调用返回 nil。
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	close(pm.stop)
	pm.mu.Unlock()

	<-pm.done
	pm.logger.Info("database pool closed")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) probeLoop() {
	defer close(pm.done)
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
			pm.probe(ctx)
			cancel()
		}
	}
}

// probe 探活并记录状态变化：首次失败与恢复各记一条日志，持续失败只记 Debug
func (pm *PoolManager) probe(ctx context.Context) {
	err := pm.Ping(ctx)
	if errors.Is(err, ErrPoolClosed) {
		return
	}

	pm.mu.Lock()
	prev := pm.health
	next := HealthStatus{Healthy: err == nil, CheckedAt: time.Now()}
	if err != nil {
		next.LastError = err.Error()
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
	pm.health = next
	pm.mu.Unlock()

	switch {
	case err != nil && prev.ConsecutiveFailures == 0:
		pm.logger.Error("database unreachable", zap.Error(err))
	case err != nil:
		pm.logger.Debug("database still unreachable",
			zap.Int("consecutive_failures", next.ConsecutiveFailures), zap.Error(err))
	case prev.ConsecutiveFailures > 0:
		pm.logger.Info("database connection recovered",
			zap.Int("failed_probes", prev.ConsecutiveFailures))
	default:
		st := pm.sqlDB.Stats()
		pm.logger.Debug("database probe ok",
			zap.Int("open", st.OpenConnections), zap.Int("in_use", st.InUse), zap.Int("idle", st.Idle))
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// PoolStats 连接池指标，供 db_pool_gauge 任务与调试输出使用
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	// Utilization = InUse / MaxOpenConnections，未设置上限时为 0
	Utilization float64 `json:"utilization"`
	Healthy     bool    `json:"healthy"`
}

func (pm *PoolManager) GetStats() PoolStats {
	st := pm.Stats()
	ps := PoolStats{
		MaxOpenConnections: st.MaxOpenConnections,
		OpenConnections:    st.OpenConnections,
		InUse:              st.InUse,
		Idle:               st.Idle,
		WaitCount:          st.WaitCount,
		WaitDuration:       st.WaitDuration,
		Healthy:            pm.Health().Healthy,
	}
	if st.MaxOpenConnections > 0 {
		ps.Utilization = float64(st.InUse) / float64(st.MaxOpenConnections)
	}
	return ps
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 在事务内执行；返回错误即回滚
type TransactionFunc func(tx *gorm.DB) error

func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	closed, db := pm.closed, pm.db
	pm.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 最多执行 attempts 次。只有连接中断、死锁/序列化冲突
// 与锁等待类错误会重试，退避从 50ms 翻倍，上限 2s。
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = pm.WithTransaction(ctx, fn)
		class := classifyRetry(err)
		if class == retryNone {
			return err
		}
		if attempt == attempts {
			break
		}

		pm.logger.Warn("transaction failed, retrying",
			zap.String("class", string(class)),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, retryMaxDelay)
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, err)
}

type retryClass string

const (
	retryNone       retryClass = ""
	retryConnection retryClass = "connection"
	retryConflict   retryClass = "conflict"
	retryLock       retryClass = "lock"
)

// 匹配 PostgreSQL / MySQL / SQLite 驱动的错误文本（小写）
var retryPatterns = []struct {
	class   retryClass
	needles []string
}{
	{retryConflict, []string{"deadlock", "serialization failure", "sqlstate 40001", "sqlstate 40p01", "could not serialize"}},
	{retryLock, []string{"lock wait timeout", "lock timeout", "database is locked", "database table is locked", "sqlite_busy"}},
	{retryConnection, []string{"bad connection", "connection reset", "connection refused", "broken pipe", "unexpected eof"}},
}

func classifyRetry(err error) retryClass {
	switch {
	case err == nil,
		errors.Is(err, ErrPoolClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retryNone
	case errors.Is(err, driver.ErrBadConn):
		return retryConnection
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryPatterns {
		for _, n := range p.needles {
			if strings.Contains(msg, n) {
				return p.class
			}
		}
	}
	return retryNone
}
