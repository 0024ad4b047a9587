package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/persistence"
	"github.com/BaSui01/agentkernel/api/handlers"
	"github.com/BaSui01/agentkernel/config"
	"github.com/BaSui01/agentkernel/internal/cache"
	"github.com/BaSui01/agentkernel/internal/database"
	"github.com/BaSui01/agentkernel/internal/events"
	"github.com/BaSui01/agentkernel/internal/metrics"
	"github.com/BaSui01/agentkernel/internal/pool"
	"github.com/BaSui01/agentkernel/internal/server"
	"github.com/BaSui01/agentkernel/internal/telemetry"
	"github.com/BaSui01/agentkernel/internal/tlsutil"
)

// publicPaths 不经过 JWT 鉴权
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装内核、存储、HTTP 与后台任务
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	registry  *prometheus.Registry
	collector *metrics.Collector
	telemetry *telemetry.Providers

	db    *database.PoolManager
	redis redis.UniversalClient
	cache *cache.Manager
	store persistence.SnapshotStore

	kernel *kernel.Kernel
	owner  *kernel.Owner
	hub    *events.Hub

	workers   *pool.WorkerPool
	limiter   *RateLimiter
	hotReload *config.HotReloadManager

	apiServer     *server.Server
	metricsServer *server.Server
	listeners     *server.Group

	shutdownOnce sync.Once
}

// NewServer 创建服务器；level 用于热更新日志级别
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 按依赖顺序初始化所有组件并开始监听。出错时已创建的组件会被释放。
func (s *Server) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.Shutdown(context.Background())
		}
	}()

	s.initMetrics()

	if err := s.initTelemetry(); err != nil {
		return err
	}
	if err := s.initBackends(); err != nil {
		return fmt.Errorf("failed to init backends: %w", err)
	}
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init snapshot store: %w", err)
	}
	if err := s.initKernel(ctx); err != nil {
		return fmt.Errorf("failed to init kernel: %w", err)
	}
	s.limiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)
	if err := s.initWorkers(); err != nil {
		return fmt.Errorf("failed to schedule background jobs: %w", err)
	}
	if err := s.initHotReload(ctx); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}
	if err := s.startListeners(); err != nil {
		return fmt.Errorf("failed to start listeners: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("kernel_id", s.kernel.ID()),
		zap.String("http_addr", s.apiServer.BoundAddr()),
		zap.String("metrics_addr", s.metricsServer.BoundAddr()),
		zap.String("store", s.cfg.Persistence.Type),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)
	return nil
}

func (s *Server) initMetrics() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("agentkernel", s.logger, metrics.WithRegisterer(s.registry))
}

func (s *Server) initTelemetry() error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger, telemetry.WithInstanceID(s.cfg.Kernel.ID))
	if err != nil {
		// 遥测不可用不阻止启动
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		return nil
	}
	s.telemetry = providers
	return nil
}

// initBackends 按需建立数据库与 Redis 连接
func (s *Server) initBackends() error {
	if s.cfg.Persistence.Type == string(persistence.StoreTypeSQL) {
		pm, err := database.Open(database.OpenConfig{
			Driver: s.cfg.Database.Driver,
			DSN:    s.cfg.Database.DSN(),
			Pool: database.PoolConfig{
				MaxOpenConns:        s.cfg.Database.MaxOpenConns,
				MaxIdleConns:        s.cfg.Database.MaxIdleConns,
				ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
				ConnMaxIdleTime:     database.DefaultPoolConfig().ConnMaxIdleTime,
				HealthCheckInterval: database.DefaultPoolConfig().HealthCheckInterval,
			},
		}, s.logger)
		if err != nil {
			return err
		}
		s.db = pm
		if err := database.Instrument(pm.DB(), s.cfg.Database.Driver, s.collector); err != nil {
			return err
		}
	}

	needRedis := s.cfg.Persistence.Type == string(persistence.StoreTypeRedis) || s.cfg.Persistence.CacheEnabled
	if !needRedis {
		return nil
	}
	opts := &redis.Options{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}
	if s.cfg.Redis.TLSEnabled {
		opts.TLSConfig = tlsutil.ClientTLSConfig(s.cfg.Redis.Addr)
	}
	s.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", s.cfg.Redis.Addr, err)
	}

	if s.cfg.Persistence.CacheEnabled {
		cc := cache.DefaultConfig()
		cc.Name = "snapshot"
		cc.KeyPrefix = s.cfg.Persistence.KeyPrefix + "cache:"
		cc.DefaultTTL = s.cfg.Persistence.CacheTTL
		s.cache = cache.NewManager(s.redis, cc, s.logger, cache.WithObserver(s.collector))
	}
	return nil
}

// initStore 构建快照存储：后端 → 可选缓存 → 指标包装
func (s *Server) initStore() error {
	opts := []persistence.FactoryOption{persistence.WithLogger(s.logger)}
	if s.db != nil {
		opts = append(opts, persistence.WithDatabasePool(s.db))
	}
	if s.redis != nil {
		opts = append(opts, persistence.WithRedisClient(s.redis))
	}
	storeCfg := s.cfg.ToStore()
	store, err := persistence.NewSnapshotStore(storeCfg, opts...)
	if err != nil {
		return err
	}
	if s.cache != nil {
		store = persistence.NewCachedSnapshotStore(store, s.cache, s.cfg.Persistence.CacheTTL, s.logger)
	}
	s.store = persistence.NewInstrumentedSnapshotStore(store, storeCfg.Type, s.collector)
	return nil
}

func (s *Server) initKernel(ctx context.Context) error {
	s.hub = events.NewHub(s.cfg.Kernel.ID, s.logger)
	recorders := []kernel.Recorder{s.collector, s.hub}
	opts := []kernel.Option{kernel.WithLogger(s.logger)}
	if s.telemetry != nil {
		opts = append(opts, kernel.WithTracer(s.telemetry.Tracer("agentkernel/kernel")))
		rec, err := s.telemetry.KernelRecorder()
		if err != nil {
			return fmt.Errorf("register otel kernel instruments: %w", err)
		}
		if rec != nil {
			recorders = append(recorders, rec)
		}
	}
	opts = append(opts, kernel.WithRecorder(kernel.MultiRecorder(recorders...)))
	s.kernel = kernel.New(s.cfg.Kernel.ToKernel(), opts...)
	s.hub.SetKernelID(s.kernel.ID())

	if id := s.cfg.Persistence.RestoreOnStart; id != "" {
		snap, err := s.store.Load(ctx, id)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			s.logger.Warn("startup snapshot not found, starting empty", zap.String("snapshot_id", id))
		case err != nil:
			return fmt.Errorf("load snapshot %s: %w", id, err)
		default:
			if err := s.kernel.Restore(ctx, snap); err != nil {
				return fmt.Errorf("restore snapshot %s: %w", id, err)
			}
			s.logger.Info("kernel restored from snapshot", zap.String("snapshot_id", id))
		}
	}

	s.owner = kernel.NewOwner(s.kernel, s.cfg.Server.QueueSize)
	return nil
}

// =============================================================================
// ⏱️ 后台任务
// =============================================================================

func (s *Server) initWorkers() error {
	s.workers = pool.NewWorkerPool(pool.DefaultConfig(), s.logger)

	jobs := []pool.Job{
		{
			Name:       "queue_gauge",
			Interval:   5 * time.Second,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				st := s.owner.QueueStats()
				s.collector.RecordQueue(st.Length, st.Size)
				return nil
			},
		},
		{
			Name:     "rate_limiter_prune",
			Interval: time.Minute,
			Run: func(ctx context.Context) error {
				if n := s.limiter.Prune(3 * time.Minute); n > 0 {
					s.logger.Debug("pruned idle rate limit entries", zap.Int("removed", n))
				}
				return nil
			},
		},
	}
	if s.db != nil {
		jobs = append(jobs, pool.Job{
			Name:       "db_pool_gauge",
			Interval:   15 * time.Second,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				st := s.db.GetStats()
				s.collector.RecordDBConnections(s.cfg.Database.Driver, st.OpenConnections, st.Idle)
				return nil
			},
		})
	}
	if s.cfg.Persistence.CleanupEnabled {
		retention := s.cfg.Persistence.Retention
		jobs = append(jobs, pool.Job{
			Name:     "snapshot_cleanup",
			Interval: s.cfg.Persistence.CleanupInterval,
			Timeout:  time.Minute,
			Run: func(ctx context.Context) error {
				n, err := s.store.Cleanup(ctx, retention)
				if err != nil {
					return err
				}
				if n > 0 {
					s.logger.Info("expired snapshots removed", zap.Int("removed", n))
				}
				return nil
			},
		})
	}

	for _, job := range jobs {
		if err := s.workers.Schedule(job); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 🔄 热更新
// =============================================================================

func (s *Server) initHotReload(ctx context.Context) error {
	opts := []config.HotReloadOption{config.WithHotReloadLogger(s.logger)}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	s.hotReload = config.NewHotReloadManager(s.cfg, opts...)
	s.hotReload.OnReload(s.applyReload)
	return s.hotReload.Start(ctx)
}

// applyReload 将新配置中可热更新的部分推送到运行中的组件
func (s *Server) applyReload(oldCfg, newCfg *config.Config) error {
	tuning := newCfg.Kernel.Tuning()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.owner.Do(ctx, func(ctx context.Context, k *kernel.Kernel) error {
		if err := k.ValidateTuning(tuning); err != nil {
			return err
		}
		k.Tune(tuning)
		return nil
	}); err != nil {
		return fmt.Errorf("apply kernel tuning: %w", err)
	}

	if newCfg.Log.Level != oldCfg.Log.Level {
		if err := s.level.UnmarshalText([]byte(newCfg.Log.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", newCfg.Log.Level, err)
		}
	}
	if newCfg.Server.RateLimitRPS != oldCfg.Server.RateLimitRPS ||
		newCfg.Server.RateLimitBurst != oldCfg.Server.RateLimitBurst {
		s.limiter.SetLimits(newCfg.Server.RateLimitRPS, newCfg.Server.RateLimitBurst)
	}

	s.logger.Info("Configuration reloaded",
		zap.String("reasoning", string(tuning.Method)),
		zap.String("planner", string(tuning.Algorithm)),
		zap.String("decision", string(tuning.Strategy)))
	return nil
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// routes 注册全部 API 与健康检查路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewKernelHealthCheck(s.owner))
	health.RegisterCheck(handlers.NewStoreHealthCheck("snapshot_store", s.store))
	// 快照后端依赖的连接是关键检查，仅用作缓存时只影响降级状态
	storeType := persistence.StoreType(s.cfg.Persistence.Type)
	if s.db != nil {
		check := handlers.NewCheckFunc("database", s.db.Ping)
		if storeType == persistence.StoreTypeSQL {
			health.RegisterCheck(check)
		} else {
			health.RegisterOptionalCheck(check)
		}
	}
	if s.redis != nil {
		client := s.redis
		check := handlers.NewCheckFunc("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		if storeType == persistence.StoreTypeRedis {
			health.RegisterCheck(check)
		} else {
			health.RegisterOptionalCheck(check)
		}
	}
	health.Register(mux, Version, BuildTime, GitCommit)

	handlers.NewKernelHandler(s.owner, s.logger).Register(mux)
	handlers.NewSnapshotHandler(s.owner, s.store, s.logger).Register(mux)
	handlers.NewConfigHandler(s.hotReload, s.logger).Register(mux)
	handlers.NewEventsHandler(s.hub, handlers.EventsConfig{
		Buffer:         s.cfg.Server.EventBuffer,
		PingInterval:   s.cfg.Server.EventPingInterval,
		OriginPatterns: s.cfg.Server.AllowedOrigins,
	}, s.logger).Register(mux)
	return mux
}

// handler 构建完整的中间件链
func (s *Server) handler() http.Handler {
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		BodyLimit(s.cfg.Server.MaxBodyBytes),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(s.tracer()),
	}
	if s.cfg.JWT.Secret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, publicPaths, s.logger))
	} else {
		s.logger.Warn("JWT secret not configured, API authentication disabled")
	}
	middlewares = append(middlewares, s.limiter.Middleware())
	return Chain(s.routes(), middlewares...)
}

// tracer 返回 HTTP span 使用的 tracer；遥测未启用时为 nil，中间件回退到全局 tracer
func (s *Server) tracer() trace.Tracer {
	if s.telemetry == nil {
		return nil
	}
	return s.telemetry.Tracer("agentkernel/http")
}

func (s *Server) startListeners() error {
	apiConfig := server.Config{
		Name:              "api",
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
		MaxConnections:    s.cfg.Server.MaxConnections,
	}
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		tlsCfg, err := tlsutil.ServerTLSConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
		apiConfig.TLS = tlsCfg
	}
	s.apiServer = server.New(s.handler(), apiConfig, s.logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry:          s.registry,
		EnableOpenMetrics: true,
	}))
	s.metricsServer = server.New(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	s.listeners = server.NewGroup(s.logger, s.apiServer, s.metricsServer)
	return s.listeners.Start()
}

// =============================================================================
// 🛑 运行与关闭
// =============================================================================

// Run 阻塞直到 ctx 结束或任一监听器失败，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	err := s.listeners.Wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.Shutdown(shutdownCtx)
	return err
}

// Shutdown 按依赖的逆序关闭：先停止入口，再停内核，最后释放存储与连接。可重复调用。
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() { s.shutdown(ctx) })
}

func (s *Server) shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.hotReload != nil {
		if err := s.hotReload.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}
	// 先关闭事件流，否则已升级的 WebSocket 连接不受 HTTP 关闭约束
	if s.hub != nil {
		s.hub.Close()
	}
	if s.listeners != nil {
		if err := s.listeners.Shutdown(ctx); err != nil {
			s.logger.Error("Listener shutdown error", zap.Error(err))
		}
	}
	if s.workers != nil {
		s.workers.Close()
	}
	if s.owner != nil {
		if err := s.owner.Close(); err != nil {
			s.logger.Error("Kernel owner shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Snapshot store shutdown error", zap.Error(err))
		}
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
