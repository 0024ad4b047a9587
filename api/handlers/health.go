package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/persistence"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// ErrDegraded 检查通过但服务能力下降（例如内核请求队列接近满）
var ErrDegraded = errors.New("degraded")

// HealthCheck 就绪探针中的一项检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass, warn, fail
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type registeredCheck struct {
	check    HealthCheck
	critical bool
}

// HealthHandler 存活、就绪与版本探针
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []registeredCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("handler", "health")),
		started: time.Now(),
		timeout: 5 * time.Second,
	}
}

// Register 注册探针与版本路由
func (h *HealthHandler) Register(mux *http.ServeMux, version, buildTime, gitCommit string) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /ready", h.HandleReady)
	mux.HandleFunc("GET /readyz", h.HandleReady)
	mux.HandleFunc("GET /version", h.HandleVersion(version, buildTime, gitCommit))
}

// RegisterCheck adds a critical check: its failure makes the service unready.
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, true)
}

// RegisterOptionalCheck adds a check whose failure only degrades the service.
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.register(check, false)
}

func (h *HealthHandler) register(check HealthCheck, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, critical: critical})
}

// HandleHealth 简单存活检查
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleHealthz Kubernetes 存活探针，不执行任何依赖检查
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{Status: statusHealthy, Timestamp: time.Now()})
}

// HandleReady 并发执行全部检查。关键检查失败返回 503；
// 只有可选检查失败或出现 ErrDegraded 时返回 200 + degraded。
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse
// @Failure 503 {object} ServiceHealthResponse
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]registeredCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, rc := range checks {
		wg.Add(1)
		go func(i int, rc registeredCheck) {
			defer wg.Done()
			results[i] = h.run(ctx, rc)
		}(i, rc)
	}
	wg.Wait()

	resp := ServiceHealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, rc := range checks {
		res := results[i]
		resp.Checks[rc.check.Name()] = res
		switch {
		case res.Status == "fail" && res.Critical:
			resp.Status = statusUnhealthy
		case res.Status != "pass" && resp.Status == statusHealthy:
			resp.Status = statusDegraded
		}
	}

	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, resp)
}

func (h *HealthHandler) run(ctx context.Context, rc registeredCheck) CheckResult {
	start := time.Now()
	err := rc.check.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Critical: rc.critical, Latency: latency.String()}
	switch {
	case err == nil:
		return res
	case errors.Is(err, ErrDegraded):
		res.Status = "warn"
	default:
		res.Status = "fail"
	}
	res.Message = err.Error()
	h.logger.Warn("readiness check not passing",
		zap.String("check", rc.check.Name()),
		zap.String("result", res.Status),
		zap.Bool("critical", rc.critical),
		zap.Duration("latency", latency),
		zap.Error(err))
	return res
}

// HandleVersion 返回构建信息
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置检查
// =============================================================================

// CheckFunc 把一个 ping 函数包装成命名检查（数据库、Redis、Mongo 等）
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a named check around fn
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// KernelHealthCheck 向所有者 goroutine 提交空操作，验证它仍在处理请求；
// 请求队列占用达到 SaturationThreshold 时报告 ErrDegraded。
type KernelHealthCheck struct {
	owner               *kernel.Owner
	SaturationThreshold float64
}

// NewKernelHealthCheck 创建内核健康检查，默认 90% 占用视为降级
func NewKernelHealthCheck(owner *kernel.Owner) *KernelHealthCheck {
	return &KernelHealthCheck{owner: owner, SaturationThreshold: 0.9}
}

func (c *KernelHealthCheck) Name() string { return "kernel" }

// 队列占用在提交探测请求之前采样，反映的是探测到达时的积压。
func (c *KernelHealthCheck) Check(ctx context.Context) error {
	st := c.owner.QueueStats()
	if err := c.owner.Do(ctx, func(context.Context, *kernel.Kernel) error { return nil }); err != nil {
		return err
	}
	if c.SaturationThreshold > 0 && st.Utilization >= c.SaturationThreshold {
		return fmt.Errorf("%w: request queue %d/%d", ErrDegraded, st.Length, st.Size)
	}
	return nil
}

// NewStoreHealthCheck 快照存储检查
func NewStoreHealthCheck(name string, store persistence.Store) *CheckFunc {
	return NewCheckFunc(name, store.Ping)
}
