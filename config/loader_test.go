// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentkernel/agent/decision"
	"github.com/BaSui01/agentkernel/agent/persistence"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "forward_chaining", cfg.Kernel.Reasoning.Method)
	assert.Equal(t, "memory", cfg.Persistence.Type)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  queue_size: 16

kernel:
  id: "kernel-a"
  reasoning:
    max_depth: 5
  planner:
    algorithm: "bfs"
    max_nodes: 500
    max_plan_depth: 12
  memory:
    type: "semantic"
    capacity: 50
  decision:
    strategy: "multi_criteria"
    risk_tolerance: 0.2
  executor:
    max_retries: 1
    timeout: 2s

persistence:
  type: "file"
  base_dir: "/var/lib/agentkernel"
  restore_on_start: "nightly"

redis:
  addr: "redis.example.com:6380"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 16, cfg.Server.QueueSize)

	assert.Equal(t, "kernel-a", cfg.Kernel.ID)
	assert.Equal(t, 5, cfg.Kernel.Reasoning.MaxDepth)
	assert.Equal(t, "forward_chaining", cfg.Kernel.Reasoning.Method, "unset keys keep their defaults")
	assert.Equal(t, "bfs", cfg.Kernel.Planner.Algorithm)
	assert.Equal(t, 500, cfg.Kernel.Planner.MaxNodes)
	assert.Equal(t, 12, cfg.Kernel.Planner.MaxPlanDepth)
	assert.Equal(t, "semantic", cfg.Kernel.Memory.Type)
	assert.Equal(t, 50, cfg.Kernel.Memory.Capacity)
	assert.Equal(t, "multi_criteria", cfg.Kernel.Decision.Strategy)
	assert.InDelta(t, 0.2, cfg.Kernel.Decision.RiskTolerance, 1e-9)
	assert.Equal(t, 1, cfg.Kernel.Executor.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Kernel.Executor.Timeout)

	assert.Equal(t, "file", cfg.Persistence.Type)
	assert.Equal(t, "/var/lib/agentkernel", cfg.Persistence.BaseDir)
	assert.Equal(t, "nightly", cfg.Persistence.RestoreOnStart)

	assert.Equal(t, "redis.example.com:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTKERNEL_SERVER_HTTP_PORT", "7777")
	t.Setenv("AGENTKERNEL_KERNEL_ID", "env-kernel")
	t.Setenv("AGENTKERNEL_KERNEL_PLANNER_ALGORITHM", "dfs")
	t.Setenv("AGENTKERNEL_KERNEL_PLANNER_MAX_NODES", "42")
	t.Setenv("AGENTKERNEL_KERNEL_DECISION_RISK_TOLERANCE", "0.9")
	t.Setenv("AGENTKERNEL_KERNEL_EXECUTOR_TIMEOUT", "250ms")
	t.Setenv("AGENTKERNEL_PERSISTENCE_CACHE_ENABLED", "true")
	t.Setenv("AGENTKERNEL_REDIS_ADDR", "env-redis:6379")
	t.Setenv("AGENTKERNEL_LOG_OUTPUT_PATHS", "stdout, /tmp/kernel.log")
	t.Setenv("AGENTKERNEL_JWT_SECRET", "s3cret")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "env-kernel", cfg.Kernel.ID)
	assert.Equal(t, "dfs", cfg.Kernel.Planner.Algorithm)
	assert.Equal(t, 42, cfg.Kernel.Planner.MaxNodes)
	assert.InDelta(t, 0.9, cfg.Kernel.Decision.RiskTolerance, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Kernel.Executor.Timeout)
	assert.True(t, cfg.Persistence.CacheEnabled)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"stdout", "/tmp/kernel.log"}, cfg.Log.OutputPaths)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
kernel:
  planner:
    algorithm: "bfs"
    max_nodes: 10
`)
	t.Setenv("AGENTKERNEL_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTKERNEL_KERNEL_PLANNER_ALGORITHM", "strips")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "strips", cfg.Kernel.Planner.Algorithm)
	assert.Equal(t, 10, cfg.Kernel.Planner.MaxNodes)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_KERNEL_ID", "custom-prefix-kernel")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom-prefix-kernel", cfg.Kernel.ID)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("AGENTKERNEL_KERNEL_PLANNER_MAX_NODES", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTKERNEL_KERNEL_PLANNER_MAX_NODES")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("AGENTKERNEL_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: [invalid
  this is not valid yaml
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "negative HTTP port", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: "invalid HTTP port"},
		{name: "HTTP port too large", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "zero queue", modify: func(c *Config) { c.Server.QueueSize = 0 }, wantErr: "queue_size"},
		{name: "tls cert without key", modify: func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, wantErr: "tls_key_file"},
		{name: "unknown method", modify: func(c *Config) { c.Kernel.Reasoning.Method = "abduction" }, wantErr: "reasoning method"},
		{name: "zero depth", modify: func(c *Config) { c.Kernel.Reasoning.MaxDepth = 0 }, wantErr: "max_depth"},
		{name: "unknown algorithm", modify: func(c *Config) { c.Kernel.Planner.Algorithm = "dijkstra" }, wantErr: "planner algorithm"},
		{name: "zero node budget", modify: func(c *Config) { c.Kernel.Planner.MaxNodes = 0 }, wantErr: "max_nodes"},
		{name: "negative plan depth", modify: func(c *Config) { c.Kernel.Planner.MaxPlanDepth = -1 }, wantErr: "max_plan_depth"},
		{name: "unknown memory type", modify: func(c *Config) { c.Kernel.Memory.Type = "procedural" }, wantErr: "memory type"},
		{name: "zero capacity", modify: func(c *Config) { c.Kernel.Memory.Capacity = 0 }, wantErr: "capacity"},
		{name: "unknown strategy", modify: func(c *Config) { c.Kernel.Decision.Strategy = "coin_flip" }, wantErr: "decision strategy"},
		{name: "risk above one", modify: func(c *Config) { c.Kernel.Decision.RiskTolerance = 1.5 }, wantErr: "risk_tolerance"},
		{name: "negative retries", modify: func(c *Config) { c.Kernel.Executor.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "zero timeout", modify: func(c *Config) { c.Kernel.Executor.Timeout = 0 }, wantErr: "timeout"},
		{name: "unknown store", modify: func(c *Config) { c.Persistence.Type = "s3" }, wantErr: "persistence type"},
		{name: "mongo without uri", modify: func(c *Config) { c.Persistence.Type = "mongo" }, wantErr: "mongo.uri"},
		{name: "mongo with uri", modify: func(c *Config) { c.Persistence.Type = "mongo"; c.Mongo.URI = "mongodb://localhost:27017" }},
		{name: "negative max connections", modify: func(c *Config) { c.Server.MaxConnections = -1 }, wantErr: "max_connections"},
		{name: "bad restore id", modify: func(c *Config) { c.Persistence.RestoreOnStart = "../etc" }, wantErr: "snapshot id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKernelConfig_Tuning(t *testing.T) {
	k := DefaultKernelConfig()
	k.Reasoning.Method = "probabilistic"
	k.Planner.Algorithm = "strips"
	k.Decision.Strategy = "rule_based"

	tuning := k.Tuning()
	assert.Equal(t, reasoning.MethodProbabilistic, tuning.Method)
	assert.Equal(t, planning.AlgorithmSTRIPS, tuning.Algorithm)
	assert.Equal(t, decision.StrategyRuleBased, tuning.Strategy)
}

func TestConfig_ToStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Persistence.Type = "redis"
	cfg.Persistence.KeyPrefix = "ak:"
	cfg.Persistence.CleanupEnabled = true
	cfg.Persistence.CleanupInterval = time.Minute
	cfg.Persistence.Retention = time.Hour
	cfg.Redis.Addr = "cache.internal:6390"
	cfg.Redis.Password = "pw"
	cfg.Redis.DB = 3

	sc := cfg.ToStore()
	assert.Equal(t, persistence.StoreTypeRedis, sc.Type)
	assert.Equal(t, "cache.internal", sc.Redis.Host)
	assert.Equal(t, 6390, sc.Redis.Port)
	assert.Equal(t, "pw", sc.Redis.Password)
	assert.Equal(t, 3, sc.Redis.DB)
	assert.Equal(t, "ak:", sc.Redis.KeyPrefix)
	assert.Equal(t, persistence.CleanupConfig{Enabled: true, Interval: time.Minute, Retention: time.Hour}, sc.Cleanup)

	cfg.Mongo.URI = "mongodb://db:27017"
	sc = cfg.ToStore()
	assert.Equal(t, "mongodb://db:27017", sc.Mongo.URI)
	assert.Equal(t, "agentkernel", sc.Mongo.Database)
	assert.Equal(t, "kernel_snapshots", sc.Mongo.Collection)
	assert.Equal(t, 10*time.Second, sc.Mongo.Timeout)

	// an address without a port keeps the store's default host
	cfg.Redis.Addr = "nohost"
	sc = cfg.ToStore()
	assert.Equal(t, persistence.DefaultStoreConfig().Redis.Host, sc.Redis.Host)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 8080\n")
	assert.NotPanics(t, func() {
		cfg := MustLoad(path)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml")
	assert.Panics(t, func() { MustLoad(path) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("AGENTKERNEL_KERNEL_ID", "env-only-kernel")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-kernel", cfg.Kernel.ID)
}
