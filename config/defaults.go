// =============================================================================
// 📦 AgentKernel 默认配置
// =============================================================================
// 内核相关默认值与各组件的 DefaultConfig 保持一致
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentkernel/agent/kernel"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Kernel:      DefaultKernelConfig(),
		Persistence: DefaultPersistenceConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Mongo:       DefaultMongoConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		JWT:         JWTConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		QueueSize:       64,
		MaxBodyBytes:    1 << 20,

		EventBuffer:       64,
		EventPingInterval: 30 * time.Second,
	}
}

// DefaultKernelConfig 返回默认内核配置
func DefaultKernelConfig() KernelConfig {
	d := kernel.DefaultConfig()
	return KernelConfig{
		Reasoning: ReasoningConfig{
			Method:   string(d.Reasoning.Method),
			MaxDepth: d.Reasoning.MaxDepth,
		},
		Planner: PlannerConfig{
			Algorithm:    string(d.Planning.Algorithm),
			MaxNodes:     d.Planning.MaxNodes,
			MaxPlanDepth: d.Planning.MaxPlanDepth,
		},
		Memory: MemoryConfig{
			Type:        string(d.Memory.Type),
			Capacity:    d.Memory.Capacity,
			WorkingSize: d.Memory.WorkingSize,
		},
		Decision: DecisionConfig{
			Strategy:      string(d.Decision.Strategy),
			RiskTolerance: d.Decision.RiskTolerance,
			MaxHistory:    d.Decision.MaxHistory,
		},
		Executor: ExecutorConfig{
			MaxRetries:        d.Execution.MaxRetries,
			Timeout:           d.Execution.Timeout,
			RetryDelay:        d.Execution.RetryDelay,
			BackoffMultiplier: d.Execution.BackoffMultiplier,
			MaxRetryDelay:     d.Execution.MaxRetryDelay,
			MaxHistory:        d.Execution.MaxHistory,
		},
	}
}

// DefaultPersistenceConfig 返回默认快照存储配置
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Type:            "memory",
		BaseDir:         "./data",
		KeyPrefix:       "agentkernel:",
		AutoMigrate:     false,
		CacheEnabled:    false,
		CacheTTL:        10 * time.Minute,
		CleanupEnabled:  false,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentkernel",
		Password:        "",
		Name:            "agentkernel",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "",
		Database:   "agentkernel",
		Collection: "kernel_snapshots",
		Timeout:    10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentkernel",
		SampleRate:   0.1,
	}
}
