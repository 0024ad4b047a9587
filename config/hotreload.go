// 配置热重载管理器实现。
//
// 重载前校验、字段级变更记录、有界历史与回滚。内核调参（推理方法、规划算法、
// 决策策略）与日志级别、限流参数可热切换，其余字段在重启后生效。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotReloadManager 管理配置热重载
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	previous   *Config
	history    []ConfigSnapshot
	maxHistory int
	validate   ValidateFunc

	watcher *FileWatcher

	reloadCallbacks []ReloadCallback
	changeLog       []ConfigChange

	logger  *zap.Logger
	running bool
	cancel  context.CancelFunc
}

// ReloadCallback 在新配置生效后调用；返回错误时配置回滚到 oldConfig
type ReloadCallback func(oldConfig, newConfig *Config) error

// ValidateFunc 额外的校验钩子，在 Config.Validate 之后运行
type ValidateFunc func(newConfig *Config) error

// ConfigChange 单个字段的变更记录
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
	Applied         bool      `json:"applied"`
	Error           string    `json:"error,omitempty"`
}

// ConfigSnapshot 配置历史条目
type ConfigSnapshot struct {
	Config    *Config   `json:"config"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// HotReloadableField 字段元信息
type HotReloadableField struct {
	Path            string `json:"path"`
	Description     string `json:"description"`
	RequiresRestart bool   `json:"requires_restart"`
	Sensitive       bool   `json:"sensitive"`
}

var hotReloadableFields = map[string]HotReloadableField{}

func register(path, desc string, restart, sensitive bool) {
	hotReloadableFields[path] = HotReloadableField{Path: path, Description: desc, RequiresRestart: restart, Sensitive: sensitive}
}

func init() {
	// 立即生效
	register("Log.Level", "Log level (debug, info, warn, error)", false, false)
	register("Kernel.Reasoning.Method", "Reasoning method", false, false)
	register("Kernel.Planner.Algorithm", "Planner search algorithm", false, false)
	register("Kernel.Decision.Strategy", "Decision strategy", false, false)
	register("Server.RateLimitRPS", "Requests per second per client", false, false)
	register("Server.RateLimitBurst", "Rate limiter burst", false, false)

	// 重启后生效
	register("Log.Format", "Log format (json, console)", true, false)
	register("Server.HTTPPort", "HTTP server port", true, false)
	register("Server.MetricsPort", "Metrics server port", true, false)
	register("Server.QueueSize", "Kernel request queue size", true, false)
	register("Kernel.Planner.MaxNodes", "Planner node budget", true, false)
	register("Kernel.Memory.Capacity", "Episodic memory capacity", true, false)
	register("Persistence.Type", "Snapshot store backend", true, false)
	register("Telemetry.SampleRate", "Trace sample rate", true, false)
	register("Redis.Addr", "Redis address", true, false)
	register("Redis.Password", "Redis password", true, true)
	register("Database.Password", "Database password", true, true)
	register("JWT.Secret", "JWT signing secret", true, true)
}

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置记录器
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) { m.logger = logger }
}

// WithConfigPath 设置被监听的配置文件
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithMaxHistorySize 设置历史条数上限
func WithMaxHistorySize(size int) HotReloadOption {
	return func(m *HotReloadManager) {
		if size > 0 {
			m.maxHistory = size
		}
	}
}

// WithValidateFunc 设置额外校验钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) { m.validate = fn }
}

// NewHotReloadManager 创建热重载管理器，cfg 作为版本 1 写入历史
func NewHotReloadManager(cfg *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:     deepCopyConfig(cfg),
		maxHistory: 10,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pushHistory(m.config, "init")
	return m
}

func (m *HotReloadManager) pushHistory(cfg *Config, source string) {
	version := 1
	if n := len(m.history); n > 0 {
		version = m.history[n-1].Version + 1
	}
	m.history = append(m.history, ConfigSnapshot{
		Config:    deepCopyConfig(cfg),
		Timestamp: time.Now(),
		Source:    source,
		Version:   version,
		Checksum:  checksum(cfg),
	})
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

func deepCopyConfig(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	return &out
}

func checksum(cfg *Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Start 启动文件监听；未设置配置路径时只支持手动重载
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	if m.configPath != "" {
		w, err := NewFileWatcher([]string{m.configPath},
			WithWatcherLogger(m.logger),
			WithDebounceDelay(500*time.Millisecond))
		if err != nil {
			m.cancel()
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		w.OnChange(m.handleFileChange)
		if err := w.Start(ctx); err != nil {
			m.cancel()
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		m.watcher = w
	}

	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止文件监听
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.cancel()
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Error("failed to stop file watcher", zap.Error(err))
		}
		m.watcher = nil
	}
	m.running = false
	m.logger.Info("hot reload manager stopped")
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op != FileOpWrite && event.Op != FileOpCreate && event.Op != FileOpRename {
		return
	}
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("failed to reload configuration", zap.Error(err))
	}
}

// ReloadFromFile 重新读取配置文件（含环境变量覆盖）并应用
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	cfg, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	_, err = m.ApplyConfig(cfg, "file")
	return err
}

// ApplyConfig 校验并应用新配置，返回字段变更列表。
//
// 回调失败时恢复旧配置，此时返回的变更均标记为未应用。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) ([]ConfigChange, error) {
	if err := newConfig.Validate(); err != nil {
		m.recordFailure(source, err)
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if m.validate != nil {
		if err := m.validate(newConfig); err != nil {
			m.recordFailure(source, err)
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	m.mu.Lock()
	oldConfig := m.config
	newConfig = deepCopyConfig(newConfig)
	changes := diffConfigs(oldConfig, newConfig)
	now := time.Now()
	restart := false
	for i := range changes {
		c := &changes[i]
		c.Timestamp = now
		c.Source = source
		c.Applied = true
		if f, ok := hotReloadableFields[c.Path]; ok {
			c.RequiresRestart = f.RequiresRestart
			if f.Sensitive {
				c.OldValue, c.NewValue = redacted, redacted
			}
		} else {
			c.RequiresRestart = true
		}
		restart = restart || c.RequiresRestart
	}
	if len(changes) == 0 {
		m.mu.Unlock()
		return nil, nil
	}
	m.previous = oldConfig
	m.config = newConfig
	callbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	if err := runCallbacks(callbacks, deepCopyConfig(oldConfig), deepCopyConfig(newConfig)); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.config = oldConfig
		}
		for i := range changes {
			changes[i].Applied = false
			changes[i].Error = err.Error()
		}
		m.appendLog(changes...)
		m.mu.Unlock()
		m.logger.Error("reload callback failed, configuration restored",
			zap.String("source", source), zap.Error(err))
		return changes, fmt.Errorf("config reload rejected: %w", err)
	}

	m.mu.Lock()
	m.pushHistory(newConfig, source)
	m.appendLog(changes...)
	m.mu.Unlock()

	for _, c := range changes {
		m.logger.Info("configuration changed",
			zap.String("path", c.Path),
			zap.String("source", c.Source),
			zap.Any("old_value", c.OldValue),
			zap.Any("new_value", c.NewValue),
			zap.Bool("requires_restart", c.RequiresRestart))
	}
	if restart {
		m.logger.Warn("some configuration changes take effect after restart")
	}
	return changes, nil
}

const redacted = "[REDACTED]"

func (m *HotReloadManager) recordFailure(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLog(ConfigChange{
		Timestamp: time.Now(),
		Source:    source,
		Path:      "(validation)",
		Error:     err.Error(),
	})
	m.logger.Warn("rejected configuration", zap.String("source", source), zap.Error(err))
}

func (m *HotReloadManager) appendLog(changes ...ConfigChange) {
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > 1000 {
		m.changeLog = m.changeLog[len(m.changeLog)-1000:]
	}
}

func runCallbacks(callbacks []ReloadCallback, oldConfig, newConfig *Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reload callback panicked: %v", r)
		}
	}()
	for _, cb := range callbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return err
		}
	}
	return nil
}

// diffConfigs 按字段路径（如 "Kernel.Planner.Algorithm"）比较两份配置
func diffConfigs(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		o, n := oldVal.Field(i), newVal.Field(i)
		if o.Kind() == reflect.Struct && o.Type() != reflect.TypeOf(time.Time{}) {
			compareStructs(path, o, n, changes)
			continue
		}
		if !reflect.DeepEqual(o.Interface(), n.Interface()) {
			*changes = append(*changes, ConfigChange{Path: path, OldValue: o.Interface(), NewValue: n.Interface()})
		}
	}
}

// OnReload 注册重载回调，按注册顺序调用
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// UpdateField 修改单个已登记字段并按 ApplyConfig 的流程应用
func (m *HotReloadManager) UpdateField(path string, value any) error {
	if _, ok := hotReloadableFields[path]; !ok {
		return fmt.Errorf("unknown configuration field: %s", path)
	}
	next := m.GetConfig()
	if err := setNestedField(reflect.ValueOf(next).Elem(), path, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	_, err := m.ApplyConfig(next, "api")
	return err
}

// Rollback 恢复上一次应用前的配置
func (m *HotReloadManager) Rollback() error {
	m.mu.RLock()
	prev := m.previous
	m.mu.RUnlock()
	if prev == nil {
		return fmt.Errorf("no previous config available for rollback")
	}
	_, err := m.ApplyConfig(prev, "rollback")
	return err
}

// RollbackToVersion 恢复历史中的指定版本
func (m *HotReloadManager) RollbackToVersion(version int) error {
	m.mu.RLock()
	var target *Config
	for _, s := range m.history {
		if s.Version == version {
			target = s.Config
			break
		}
	}
	m.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("config version %d not found in history", version)
	}
	_, err := m.ApplyConfig(target, fmt.Sprintf("rollback:v%d", version))
	return err
}

// GetConfig 返回当前配置的副本
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopyConfig(m.config)
}

// GetConfigHistory 返回历史（旧到新）
func (m *HotReloadManager) GetConfigHistory() []ConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ConfigSnapshot(nil), m.history...)
}

// GetCurrentVersion 返回最新历史版本号
func (m *HotReloadManager) GetCurrentVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return 0
	}
	return m.history[len(m.history)-1].Version
}

// GetChangeLog 返回最近 limit 条变更，limit<=0 表示全部
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	return append([]ConfigChange(nil), m.changeLog[len(m.changeLog)-limit:]...)
}

func setNestedField(v reflect.Value, path string, value any) error {
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("field not found: %s", part)
		}
	}
	if !v.CanSet() {
		return fmt.Errorf("cannot set field %s", path)
	}

	nv := reflect.ValueOf(value)
	if !nv.IsValid() {
		return fmt.Errorf("nil value for %s", path)
	}
	// JSON 数字解码为 float64，整型字段需要显式转换
	if v.Kind() != reflect.String && nv.Kind() == reflect.String {
		return fmt.Errorf("type mismatch: expected %s, got string", v.Type())
	}
	if v.Kind() == reflect.String && nv.Kind() != reflect.String {
		return fmt.Errorf("type mismatch: expected string, got %s", nv.Type())
	}
	if !nv.Type().ConvertibleTo(v.Type()) {
		return fmt.Errorf("type mismatch: expected %s, got %s", v.Type(), nv.Type())
	}
	v.Set(nv.Convert(v.Type()))
	return nil
}

// GetHotReloadableFields 返回字段登记表的副本
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable 字段修改后是否无需重启即可生效
func IsHotReloadable(path string) bool {
	f, ok := hotReloadableFields[path]
	return ok && !f.RequiresRestart
}

// SanitizedConfig 返回脱敏后的配置视图
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	m.mu.RLock()
	data, err := json.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	redactSensitiveFields(out)
	return out
}

var sensitiveKeys = []string{"password", "secret", "token", "apikey", "api_key", "credential"}

func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested)
			continue
		}
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				if str, ok := value.(string); ok && str != "" {
					data[key] = redacted
				}
				break
			}
		}
	}
}
