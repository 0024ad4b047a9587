// =============================================================================
// 📦 AgentKernel 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTKERNEL").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentkernel/agent/decision"
	"github.com/BaSui01/agentkernel/agent/execution"
	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/memory"
	"github.com/BaSui01/agentkernel/agent/persistence"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentKernel 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Kernel 认知内核配置
	Kernel KernelConfig `yaml:"kernel" env:"KERNEL"`

	// Persistence 快照存储配置
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Mongo MongoDB 配置（persistence.type=mongo 时使用）
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// JWT 鉴权配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 内核请求队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 单个请求体上限（字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// TLS 证书与私钥，均为空时使用明文 HTTP
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 最大并发连接数，0 表示不限
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// 事件流每连接缓冲
	EventBuffer int `yaml:"event_buffer" env:"EVENT_BUFFER"`
	// 事件流心跳间隔
	EventPingInterval time.Duration `yaml:"event_ping_interval" env:"EVENT_PING_INTERVAL"`
	// 事件流允许的跨域 Origin 模式
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// KernelConfig 内核配置
type KernelConfig struct {
	// 内核 ID，为空时自动生成
	ID string `yaml:"id" env:"ID"`
	// 推理配置
	Reasoning ReasoningConfig `yaml:"reasoning" env:"REASONING"`
	// 规划配置
	Planner PlannerConfig `yaml:"planner" env:"PLANNER"`
	// 记忆配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`
	// 决策配置
	Decision DecisionConfig `yaml:"decision" env:"DECISION"`
	// 执行配置
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`
}

// ReasoningConfig 推理引擎配置
type ReasoningConfig struct {
	// 方法: forward_chaining, backward_chaining, probabilistic
	Method string `yaml:"method" env:"METHOD"`
	// 前向链最大轮数
	MaxDepth int `yaml:"max_depth" env:"MAX_DEPTH"`
}

// PlannerConfig 规划器配置
type PlannerConfig struct {
	// 算法: a_star, bfs, dfs, strips
	Algorithm string `yaml:"algorithm" env:"ALGORITHM"`
	// 单次规划节点预算
	MaxNodes int `yaml:"max_nodes" env:"MAX_NODES"`
	// 计划长度上界，0 表示不限
	MaxPlanDepth int `yaml:"max_plan_depth" env:"MAX_PLAN_DEPTH"`
}

// MemoryConfig 记忆配置
type MemoryConfig struct {
	// 默认分区: working, episodic, semantic
	Type string `yaml:"type" env:"TYPE"`
	// 情节记忆容量
	Capacity int `yaml:"capacity" env:"CAPACITY"`
	// 工作记忆大小
	WorkingSize int `yaml:"working_size" env:"WORKING_SIZE"`
}

// DecisionConfig 决策配置
type DecisionConfig struct {
	// 策略: utility_based, rule_based, multi_criteria
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 风险偏好 [0,1]
	RiskTolerance float64 `yaml:"risk_tolerance" env:"RISK_TOLERANCE"`
	// 历史记录上限
	MaxHistory int `yaml:"max_history" env:"MAX_HISTORY"`
}

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 单次动作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 首次重试延迟
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// 退避倍数
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	// 最大重试延迟
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"MAX_RETRY_DELAY"`
	// 历史记录上限
	MaxHistory int `yaml:"max_history" env:"MAX_HISTORY"`
}

// PersistenceConfig 快照存储配置
type PersistenceConfig struct {
	// 后端: memory, file, redis, sql, mongo
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 启动时通过 GORM 建表（否则依赖迁移）
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 启用 Redis 读穿透缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 定期清理
	CleanupEnabled bool `yaml:"cleanup_enabled" env:"CLEANUP_ENABLED"`
	// 清理间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 快照保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
	// 启动时恢复的快照 ID，为空则不恢复
	RestoreOnStart string `yaml:"restore_on_start" env:"RESTORE_ON_START"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 快照集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 连接与单次操作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig JWT 鉴权配置，Secret 为空时关闭鉴权
type JWTConfig struct {
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// 签发者，非空时校验 iss
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 受众，非空时校验 aud
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTKERNEL",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.QueueSize <= 0 {
		errs = append(errs, "server.queue_size must be positive")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	// 验证内核配置
	k := c.Kernel
	if !oneOf(k.Reasoning.Method, string(reasoning.MethodForwardChaining), string(reasoning.MethodBackwardChaining), string(reasoning.MethodProbabilistic)) {
		errs = append(errs, fmt.Sprintf("unknown reasoning method %q", k.Reasoning.Method))
	}
	if k.Reasoning.MaxDepth <= 0 {
		errs = append(errs, "kernel.reasoning.max_depth must be positive")
	}
	if !oneOf(k.Planner.Algorithm, string(planning.AlgorithmAStar), string(planning.AlgorithmBFS), string(planning.AlgorithmDFS), string(planning.AlgorithmSTRIPS)) {
		errs = append(errs, fmt.Sprintf("unknown planner algorithm %q", k.Planner.Algorithm))
	}
	if k.Planner.MaxNodes <= 0 {
		errs = append(errs, "kernel.planner.max_nodes must be positive")
	}
	if k.Planner.MaxPlanDepth < 0 {
		errs = append(errs, "kernel.planner.max_plan_depth must not be negative")
	}
	if _, ok := types.ParseMemoryCategory(k.Memory.Type); !ok {
		errs = append(errs, fmt.Sprintf("unknown memory type %q", k.Memory.Type))
	}
	if k.Memory.Capacity <= 0 || k.Memory.WorkingSize <= 0 {
		errs = append(errs, "kernel.memory capacity and working_size must be positive")
	}
	if !oneOf(k.Decision.Strategy, string(decision.StrategyUtilityBased), string(decision.StrategyRuleBased), string(decision.StrategyMultiCriteria)) {
		errs = append(errs, fmt.Sprintf("unknown decision strategy %q", k.Decision.Strategy))
	}
	if k.Decision.RiskTolerance < 0 || k.Decision.RiskTolerance > 1 {
		errs = append(errs, "kernel.decision.risk_tolerance must be between 0 and 1")
	}
	if k.Executor.MaxRetries < 0 {
		errs = append(errs, "kernel.executor.max_retries must not be negative")
	}
	if k.Executor.Timeout <= 0 {
		errs = append(errs, "kernel.executor.timeout must be positive")
	}

	// 验证存储配置
	if !oneOf(c.Persistence.Type, string(persistence.StoreTypeMemory), string(persistence.StoreTypeFile), string(persistence.StoreTypeRedis), string(persistence.StoreTypeSQL), string(persistence.StoreTypeMongo)) {
		errs = append(errs, fmt.Sprintf("unknown persistence type %q", c.Persistence.Type))
	}
	if c.Persistence.Type == string(persistence.StoreTypeMongo) && c.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required for the mongo persistence type")
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, "server.max_connections must not be negative")
	}
	if c.Persistence.RestoreOnStart != "" {
		if err := persistence.ValidateID(c.Persistence.RestoreOnStart); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ToKernel 转换为内核配置
func (k KernelConfig) ToKernel() kernel.Config {
	return kernel.Config{
		ID: k.ID,
		Reasoning: reasoning.Config{
			Method:   reasoning.Method(k.Reasoning.Method),
			MaxDepth: k.Reasoning.MaxDepth,
		},
		Planning: planning.Config{
			Algorithm:    planning.Algorithm(k.Planner.Algorithm),
			MaxNodes:     k.Planner.MaxNodes,
			MaxPlanDepth: k.Planner.MaxPlanDepth,
		},
		Memory: memory.Config{
			Type:        memory.Type(k.Memory.Type),
			Capacity:    k.Memory.Capacity,
			WorkingSize: k.Memory.WorkingSize,
		},
		Decision: decision.Config{
			Strategy:      decision.Strategy(k.Decision.Strategy),
			RiskTolerance: k.Decision.RiskTolerance,
			MaxHistory:    k.Decision.MaxHistory,
		},
		Execution: execution.Config{
			MaxRetries:        k.Executor.MaxRetries,
			Timeout:           k.Executor.Timeout,
			RetryDelay:        k.Executor.RetryDelay,
			BackoffMultiplier: k.Executor.BackoffMultiplier,
			MaxRetryDelay:     k.Executor.MaxRetryDelay,
			MaxHistory:        k.Executor.MaxHistory,
		},
	}
}

// Tuning 返回可热切换的内核参数
func (k KernelConfig) Tuning() kernel.Tuning {
	return kernel.Tuning{
		Method:    reasoning.Method(k.Reasoning.Method),
		Algorithm: planning.Algorithm(k.Planner.Algorithm),
		Strategy:  decision.Strategy(k.Decision.Strategy),
	}
}

// ToStore 转换为快照存储配置，Redis 连接参数取自 redis 段
func (c *Config) ToStore() persistence.StoreConfig {
	sc := persistence.DefaultStoreConfig()
	sc.Type = persistence.StoreType(c.Persistence.Type)
	sc.BaseDir = c.Persistence.BaseDir
	sc.SQL.AutoMigrate = c.Persistence.AutoMigrate
	sc.Cleanup = persistence.CleanupConfig{
		Enabled:   c.Persistence.CleanupEnabled,
		Interval:  c.Persistence.CleanupInterval,
		Retention: c.Persistence.Retention,
	}
	if host, port, ok := splitHostPort(c.Redis.Addr); ok {
		sc.Redis.Host = host
		sc.Redis.Port = port
	}
	sc.Redis.Password = c.Redis.Password
	sc.Redis.DB = c.Redis.DB
	sc.Redis.PoolSize = c.Redis.PoolSize
	if c.Persistence.KeyPrefix != "" {
		sc.Redis.KeyPrefix = c.Persistence.KeyPrefix
	}
	sc.Mongo = persistence.MongoStoreConfig{
		URI:        c.Mongo.URI,
		Database:   c.Mongo.Database,
		Collection: c.Mongo.Collection,
		Timeout:    c.Mongo.Timeout,
	}
	return sc
}

func splitHostPort(addr string) (string, int, bool) {
	i := strings.LastIndex(addr, ":")
	if i <= 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", 0, false
	}
	return addr[:i], port, true
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
