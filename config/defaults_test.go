package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/persistence"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, KernelConfig{}, cfg.Kernel)
	assert.NotEqual(t, PersistenceConfig{}, cfg.Persistence)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, MongoConfig{}, cfg.Mongo)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Empty(t, cfg.JWT.Secret, "auth is off by default")
}

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.InDelta(t, 100.0, cfg.RateLimitRPS, 0.001)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Zero(t, cfg.MaxConnections)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.Equal(t, 30*time.Second, cfg.EventPingInterval)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestDefaultMongoConfig(t *testing.T) {
	cfg := DefaultMongoConfig()
	assert.Empty(t, cfg.URI)
	assert.Equal(t, "agentkernel", cfg.Database)
	assert.Equal(t, "kernel_snapshots", cfg.Collection)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestDefaultKernelConfig_MatchesComponents(t *testing.T) {
	cfg := DefaultKernelConfig()
	want := kernel.DefaultConfig()

	got := cfg.ToKernel()
	assert.Equal(t, want.Reasoning, got.Reasoning)
	assert.Equal(t, want.Planning, got.Planning)
	assert.Equal(t, want.Memory, got.Memory)
	assert.Equal(t, want.Decision, got.Decision)
	assert.Equal(t, want.Execution, got.Execution)

	assert.Equal(t, "forward_chaining", cfg.Reasoning.Method)
	assert.Equal(t, "a_star", cfg.Planner.Algorithm)
	assert.Equal(t, 100, cfg.Planner.MaxNodes)
	assert.Equal(t, "episodic", cfg.Memory.Type)
	assert.Equal(t, "utility_based", cfg.Decision.Strategy)
}

func TestDefaultPersistenceConfig(t *testing.T) {
	cfg := DefaultPersistenceConfig()
	assert.Equal(t, string(persistence.StoreTypeMemory), cfg.Type)
	assert.Equal(t, "agentkernel:", cfg.KeyPrefix)
	assert.False(t, cfg.CacheEnabled)
	assert.False(t, cfg.CleanupEnabled)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention)
	assert.Empty(t, cfg.RestoreOnStart)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
	assert.False(t, cfg.TLSEnabled)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "agentkernel", cfg.User)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "agentkernel", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "agentkernel", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
