package execution

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome class of one execution.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusRetrying Status = "retrying"
)

// ErrActionFailed 环境明确拒绝动作时返回（或包装）该错误，结果状态为 failure；其余错误为 error。
var ErrActionFailed = errors.New("action failed")

// Environment executes named actions.
type Environment interface {
	Step(ctx context.Context, action string) (any, error)
}

// EnvironmentFunc adapts a function to Environment.
type EnvironmentFunc func(ctx context.Context, action string) (any, error)

// Step calls f.
func (f EnvironmentFunc) Step(ctx context.Context, action string) (any, error) {
	return f(ctx, action)
}

// StateObserver is implemented by environments whose state Monitor can capture.
type StateObserver interface {
	State() map[string]any
}

// ErrorHandler 为失败的动作给出恢复动作，返回 false 表示不处理
type ErrorHandler func(err error, action string, env Environment) (recovery string, ok bool)

// Result 单次执行结果
type Result struct {
	Action        string        `json:"action"`
	Status        Status        `json:"status"`
	Output        any           `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	Err           error         `json:"-"`
	Duration      time.Duration `json:"duration"`
	Attempts      int           `json:"attempts"`
	UsedFallback  bool          `json:"used_fallback,omitempty"`
	PrimaryAction string        `json:"primary_action,omitempty"`
	Recovery      string        `json:"recovery,omitempty"`
}

// OK reports whether the execution succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Monitored is a Result with the environment state captured around it.
type Monitored struct {
	Result
	StartedAt time.Time      `json:"started_at"`
	PreState  map[string]any `json:"pre_state,omitempty"`
	PostState map[string]any `json:"post_state,omitempty"`
	Changed   bool           `json:"changed"`
}

// Config configures an Executor.
type Config struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	MaxHistory        int           `yaml:"max_history" json:"max_history"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		Timeout:           10 * time.Second,
		RetryDelay:        500 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRetryDelay:     5 * time.Second,
		MaxHistory:        1000,
	}
}

// Stats 执行统计
type Stats struct {
	MaxRetries      int           `json:"max_retries"`
	Timeout         time.Duration `json:"timeout"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	TimeoutCount    int64         `json:"timeout_count"`
	SuccessRate     float64       `json:"success_rate"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalExecutions int           `json:"total_executions"`
}

type handlerEntry struct {
	target  error
	handler ErrorHandler
}

// Executor runs actions against an Environment with timeouts, retries and fallbacks.
type Executor struct {
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers []handlerEntry
	history  []Result

	successCount  int64
	failureCount  int64
	timeoutCount  int64
	totalDuration time.Duration
}

// NewExecutor 创建执行器
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	e := &Executor{
		config: config,
		logger: logger.With(zap.String("component", "executor")),
	}
	e.logger.Info("executor initialized",
		zap.Int("max_retries", config.MaxRetries),
		zap.Duration("timeout", config.Timeout))
	return e
}

// Execute 执行单个动作
//
// 动作在独立 goroutine 中运行；超过 Config.Timeout 时立即返回 timeout，环境收到的 ctx 随之取消。
// 环境 panic 被转换为 error 状态。
func (e *Executor) Execute(ctx context.Context, action string, env Environment) Result {
	start := time.Now()
	e.logger.Debug("executing action", zap.String("action", action))

	output, err := e.step(ctx, action, env)
	r := Result{
		Action:   action,
		Output:   output,
		Err:      err,
		Duration: time.Since(start),
		Attempts: 1,
	}
	switch {
	case err == nil:
		r.Status = StatusSuccess
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		r.Status = StatusTimeout
	case errors.Is(err, ErrActionFailed):
		r.Status = StatusFailure
	default:
		r.Status = StatusError
	}
	if err != nil {
		r.Error = err.Error()
	}

	e.record(r)

	switch r.Status {
	case StatusSuccess:
		e.logger.Info("action executed", zap.String("action", action), zap.Duration("duration", r.Duration))
	case StatusTimeout:
		e.logger.Error("action execution timeout", zap.String("action", action), zap.Duration("duration", r.Duration))
	default:
		e.logger.Error("action execution failed", zap.String("action", action),
			zap.String("status", string(r.Status)), zap.Error(err))
	}
	return r
}

type stepOutcome struct {
	output any
	err    error
}

func (e *Executor) step(ctx context.Context, action string, env Environment) (any, error) {
	if env == nil {
		return nil, fmt.Errorf("execute %s: nil environment", action)
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	done := make(chan stepOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- stepOutcome{err: fmt.Errorf("action %s panicked: %v", action, rec)}
			}
		}()
		out, err := env.Step(ctx, action)
		done <- stepOutcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("action %s: %w", action, ctx.Err())
	}
}

// ExecuteWithRetry 失败时按指数退避重试，最多 MaxRetries 次
func (e *Executor) ExecuteWithRetry(ctx context.Context, action string, env Environment) Result {
	delay := e.config.RetryDelay
	var last Result
	for attempt := 1; attempt <= e.config.MaxRetries+1; attempt++ {
		if attempt > 1 {
			e.logger.Info("retrying action",
				zap.String("action", action),
				zap.Int("attempt", attempt-1),
				zap.Int("max_retries", e.config.MaxRetries),
				zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				last.Attempts = attempt - 1
				return last
			}
			delay = e.nextDelay(delay)
		}

		last = e.Execute(ctx, action, env)
		last.Attempts = attempt
		if last.OK() || ctx.Err() != nil {
			return last
		}
	}
	e.logger.Error("action failed after retries",
		zap.String("action", action),
		zap.Int("max_retries", e.config.MaxRetries))
	return last
}

func (e *Executor) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * e.config.BackoffMultiplier)
	if e.config.MaxRetryDelay > 0 && next > e.config.MaxRetryDelay {
		return e.config.MaxRetryDelay
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteSequence 顺序执行动作序列，stopOnFailure 时在首个失败处停止
func (e *Executor) ExecuteSequence(ctx context.Context, actions []string, env Environment, stopOnFailure bool) []Result {
	e.logger.Info("executing sequence", zap.Int("actions", len(actions)))

	results := make([]Result, 0, len(actions))
	succeeded := 0
	for i, action := range actions {
		if ctx.Err() != nil {
			break
		}
		r := e.Execute(ctx, action, env)
		results = append(results, r)
		if r.OK() {
			succeeded++
			continue
		}
		if stopOnFailure {
			e.logger.Warn("stopping sequence on failure", zap.Int("index", i), zap.String("action", action))
			break
		}
	}

	e.logger.Info("sequence complete", zap.Int("succeeded", succeeded), zap.Int("executed", len(results)))
	return results
}

// ExecuteSafe 带重试执行主动作；失败后先尝试已注册的错误处理器给出的恢复动作，
// 否则执行 fallback（为空则直接返回主动作结果）。
func (e *Executor) ExecuteSafe(ctx context.Context, action string, env Environment, fallback string) Result {
	r := e.ExecuteWithRetry(ctx, action, env)
	if r.OK() || ctx.Err() != nil {
		return r
	}

	if recovery, ok := e.HandleError(r.Err, action, env); ok && recovery != "" {
		e.logger.Info("recovering with handler action", zap.String("action", action), zap.String("recovery", recovery))
		rr := e.Execute(ctx, recovery, env)
		rr.PrimaryAction = action
		rr.Recovery = recovery
		return rr
	}

	if fallback == "" {
		return r
	}
	e.logger.Info("primary action failed, attempting fallback",
		zap.String("action", action), zap.String("fallback", fallback))
	fr := e.Execute(ctx, fallback, env)
	fr.UsedFallback = true
	fr.PrimaryAction = action
	return fr
}

// RegisterErrorHandler 注册错误处理器，按 errors.Is 匹配 target，先注册者优先
func (e *Executor) RegisterErrorHandler(target error, handler ErrorHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handlerEntry{target: target, handler: handler})
	e.mu.Unlock()
	e.logger.Debug("registered error handler", zap.String("target", fmt.Sprint(target)))
}

// HandleError returns the recovery action of the first handler whose target matches err.
func (e *Executor) HandleError(err error, action string, env Environment) (string, bool) {
	if err == nil {
		return "", false
	}
	e.mu.RLock()
	handlers := append([]handlerEntry(nil), e.handlers...)
	e.mu.RUnlock()

	for _, h := range handlers {
		if errors.Is(err, h.target) {
			return h.handler(err, action, env)
		}
	}
	return "", false
}

// Monitor executes action and captures environment state before and after.
func (e *Executor) Monitor(ctx context.Context, action string, env Environment) Monitored {
	m := Monitored{StartedAt: time.Now()}
	obs, ok := env.(StateObserver)
	if ok {
		m.PreState = obs.State()
	}
	m.Result = e.Execute(ctx, action, env)
	if ok {
		m.PostState = obs.State()
		m.Changed = !reflect.DeepEqual(m.PreState, m.PostState)
	}
	return m
}

func (e *Executor) record(r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalDuration += r.Duration
	switch r.Status {
	case StatusSuccess:
		e.successCount++
	case StatusTimeout:
		e.timeoutCount++
		e.failureCount++
	default:
		e.failureCount++
	}

	e.history = append(e.history, r)
	if e.config.MaxHistory > 0 && len(e.history) > e.config.MaxHistory {
		e.history = append([]Result(nil), e.history[len(e.history)-e.config.MaxHistory:]...)
	}
}

// SuccessRate returns successes over all executions, 0 when nothing ran.
func (e *Executor) SuccessRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.successRateLocked()
}

func (e *Executor) successRateLocked() float64 {
	total := e.successCount + e.failureCount
	if total == 0 {
		return 0
	}
	return float64(e.successCount) / float64(total)
}

// AverageDuration returns the mean execution time.
func (e *Executor) AverageDuration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.averageLocked()
}

func (e *Executor) averageLocked() time.Duration {
	total := e.successCount + e.failureCount
	if total == 0 {
		return 0
	}
	return e.totalDuration / time.Duration(total)
}

// History returns a copy of the execution history.
func (e *Executor) History() []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Result(nil), e.history...)
}

// ClearHistory 清空执行历史，保留计数
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
	e.logger.Debug("execution history cleared")
}

// ResetStats 清空计数与历史
func (e *Executor) ResetStats() {
	e.mu.Lock()
	e.successCount, e.failureCount, e.timeoutCount = 0, 0, 0
	e.totalDuration = 0
	e.history = nil
	e.mu.Unlock()
	e.logger.Info("execution statistics reset")
}

// Stats returns execution statistics.
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		MaxRetries:      e.config.MaxRetries,
		Timeout:         e.config.Timeout,
		SuccessCount:    e.successCount,
		FailureCount:    e.failureCount,
		TimeoutCount:    e.timeoutCount,
		SuccessRate:     e.successRateLocked(),
		TotalDuration:   e.totalDuration,
		AverageDuration: e.averageLocked(),
		TotalExecutions: len(e.history),
	}
}

func (e *Executor) String() string {
	return fmt.Sprintf("Executor(max_retries=%d, timeout=%s, success_rate=%.2f%%)",
		e.config.MaxRetries, e.config.Timeout, e.SuccessRate()*100)
}
