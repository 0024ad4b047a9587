package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/kernel"
	"github.com/BaSui01/agentkernel/agent/memory"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/api"
	"github.com/BaSui01/agentkernel/internal/channel"
	"github.com/BaSui01/agentkernel/types"
)

// =============================================================================
// 🧠 内核 Handler
// =============================================================================

// KernelHandler 内核操作处理器，所有访问经由 Owner 串行执行
type KernelHandler struct {
	owner  *kernel.Owner
	logger *zap.Logger
}

// NewKernelHandler 创建内核处理器
func NewKernelHandler(owner *kernel.Owner, logger *zap.Logger) *KernelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KernelHandler{owner: owner, logger: logger.With(zap.String("handler", "kernel"))}
}

// Register 注册 /api/v1 下的内核路由
func (h *KernelHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/facts", h.HandleAddFact)
	mux.HandleFunc("POST /api/v1/rules", h.HandleAddRule)
	mux.HandleFunc("POST /api/v1/infer", h.HandleInfer)
	mux.HandleFunc("GET /api/v1/query", h.HandleQuery)
	mux.HandleFunc("POST /api/v1/explain", h.HandleExplain)
	mux.HandleFunc("POST /api/v1/prove", h.HandleProve)
	mux.HandleFunc("POST /api/v1/actions", h.HandleRegisterAction)
	mux.HandleFunc("POST /api/v1/plan", h.HandlePlan)
	mux.HandleFunc("POST /api/v1/decide", h.HandleDecide)
	mux.HandleFunc("POST /api/v1/memory", h.HandleRemember)
	mux.HandleFunc("POST /api/v1/memory/recall", h.HandleRecall)
	mux.HandleFunc("POST /api/v1/memory/clear", h.HandleClearMemory)
	mux.HandleFunc("PUT /api/v1/tuning", h.HandleTune)
	mux.HandleFunc("GET /api/v1/stats", h.HandleStats)
}

func (h *KernelHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorFor(w, r, toAPIError(err), h.logger)
}

// decode 校验 Content-Type 并解码请求体；失败时已写出响应
func (h *KernelHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !ValidateContentType(w, r, h.logger) {
		return false
	}
	return DecodeJSONBody(w, r, dst, h.logger) == nil
}

// 记忆接口缺省值
const (
	defaultMemoryPriority  = 1.0
	defaultRecallLimit     = 5
	defaultRecallThreshold = 0.5
)

func floatOr(c *float64, def float64) float64 {
	if c == nil {
		return def
	}
	return *c
}

func parseMemoryType(s string) (memory.Type, error) {
	if s == "" {
		return "", nil
	}
	t, ok := types.ParseMemoryCategory(s)
	if !ok {
		return "", types.NewInvalidRequestError("unknown memory type %q", s)
	}
	return t, nil
}

// =============================================================================
// 知识库
// =============================================================================

// HandleAddFact 添加事实
// @Summary 添加事实
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.FactRequest true "事实"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Router /api/v1/facts [post]
func (h *KernelHandler) HandleAddFact(w http.ResponseWriter, r *http.Request) {
	var req api.FactRequest
	if !h.decode(w, r, &req) {
		return
	}
	conf := floatOr(req.Confidence, 1)
	err := h.owner.Do(r.Context(), func(ctx context.Context, k *kernel.Kernel) error {
		return k.AddFact(ctx, req.Subject, req.Predicate, conf)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusCreated, reasoning.WeightedFact{
		Fact:       reasoning.F(req.Subject, req.Predicate),
		Confidence: conf,
	})
}

// HandleAddRule 添加规则
// @Summary 添加规则
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.RuleRequest true "规则"
// @Success 201 {object} Response
// @Router /api/v1/rules [post]
func (h *KernelHandler) HandleAddRule(w http.ResponseWriter, r *http.Request) {
	var req api.RuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule := reasoning.Rule{
		Premises:   req.Premises,
		Conclusion: req.Conclusion,
		Confidence: floatOr(req.Confidence, 1),
	}
	err := h.owner.Do(r.Context(), func(ctx context.Context, k *kernel.Kernel) error {
		return k.AddRule(ctx, rule.Premises, rule.Conclusion, rule.Confidence)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusCreated, rule)
}

// HandleInfer 运行推理
// @Summary 运行推理
// @Tags 知识库
// @Produce json
// @Success 200 {object} api.InferResponse
// @Router /api/v1/infer [post]
func (h *KernelHandler) HandleInfer(w http.ResponseWriter, r *http.Request) {
	resp, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (api.InferResponse, error) {
		derived, err := k.Infer(ctx)
		return api.InferResponse{
			Method:  string(k.Engine().Method()),
			Derived: derived,
			Count:   len(derived),
		}, err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, resp)
}

// HandleQuery 按主语查询
// @Summary 查询事实
// @Tags 知识库
// @Produce json
// @Param subject query string true "主语"
// @Success 200 {object} api.QueryResponse
// @Router /api/v1/query [get]
func (h *KernelHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		h.fail(w, r, types.NewInvalidRequestError("query parameter subject is required"))
		return
	}
	got, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) ([]reasoning.Assertion, error) {
		return k.Query(ctx, subject), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if got == nil {
		got = []reasoning.Assertion{}
	}
	writeSuccessStatus(w, r, http.StatusOK, api.QueryResponse{Subject: subject, Assertions: got})
}

// HandleExplain 解释推导过程
// @Summary 解释事实来源
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.FactRef true "事实"
// @Success 200 {object} api.ExplainResponse
// @Router /api/v1/explain [post]
func (h *KernelHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req api.FactRef
	if !h.decode(w, r, &req) {
		return
	}
	f := reasoning.F(req.Subject, req.Predicate)
	text, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (string, error) {
		return k.Explain(ctx, f), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, api.ExplainResponse{Fact: f, Explanation: text})
}

// HandleProve 反向证明
// @Summary 证明目标事实
// @Tags 知识库
// @Accept json
// @Produce json
// @Param request body api.FactRef true "目标"
// @Success 200 {object} Response
// @Router /api/v1/prove [post]
func (h *KernelHandler) HandleProve(w http.ResponseWriter, r *http.Request) {
	var req api.FactRef
	if !h.decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Predicate == "" {
		h.fail(w, r, types.NewInvalidRequestError("goal requires subject and predicate"))
		return
	}
	proof, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (reasoning.Proof, error) {
		return k.Prove(ctx, reasoning.F(req.Subject, req.Predicate))
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, proof)
}

// =============================================================================
// 规划与决策
// =============================================================================

func toAction(spec api.ActionSpec) planning.Action {
	return planning.Action{
		Name:         spec.Name,
		Precondition: planning.Requires(spec.Requires),
		Effect:       planning.Assign(spec.Assign),
		Cost:         spec.Cost,
	}
}

// HandleRegisterAction 注册规划动作
// @Summary 注册动作
// @Tags 规划
// @Accept json
// @Produce json
// @Param request body api.ActionSpec true "动作"
// @Success 201 {object} Response
// @Router /api/v1/actions [post]
func (h *KernelHandler) HandleRegisterAction(w http.ResponseWriter, r *http.Request) {
	var req api.ActionSpec
	if !h.decode(w, r, &req) {
		return
	}
	a := toAction(req)
	err := h.owner.Do(r.Context(), func(_ context.Context, k *kernel.Kernel) error {
		return k.RegisterAction(a.Name, a.Precondition, a.Effect, a.Cost)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusCreated, req)
}

// HandlePlan 搜索计划。未找到计划不是错误，found 为 false
// @Summary 创建计划
// @Tags 规划
// @Accept json
// @Produce json
// @Param request body api.PlanRequest true "规划请求"
// @Success 200 {object} api.PlanResponse
// @Router /api/v1/plan [post]
func (h *KernelHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req api.PlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Goal) == 0 {
		h.fail(w, r, types.NewInvalidRequestError("goal must not be empty"))
		return
	}

	var actions []planning.Action
	if len(req.Actions) > 0 {
		actions = make([]planning.Action, 0, len(req.Actions))
		for _, spec := range req.Actions {
			actions = append(actions, toAction(spec))
		}
	}
	initial := req.Initial
	if initial == nil {
		initial = planning.State{}
	}

	resp, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (api.PlanResponse, error) {
		plan, err := k.Plan(ctx, initial, req.Goal, actions)
		stats := k.Planner().Stats()
		return api.PlanResponse{
			Plan:          plan,
			Found:         stats.Found,
			Algorithm:     stats.Algorithm,
			NodesExplored: stats.NodesExplored,
			Cost:          stats.PlanCost,
		}, err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, resp)
}

// HandleDecide 在可选动作中决策
// @Summary 决策
// @Tags 决策
// @Accept json
// @Produce json
// @Param request body api.DecideRequest true "决策请求"
// @Success 200 {object} api.DecideResponse
// @Router /api/v1/decide [post]
func (h *KernelHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	var req api.DecideRequest
	if !h.decode(w, r, &req) {
		return
	}
	state := req.State
	if state == nil {
		state = map[string]any{}
	}
	resp, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (api.DecideResponse, error) {
		action, ok := k.Decide(ctx, state, req.Actions)
		return api.DecideResponse{Action: action, Decided: ok}, nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, resp)
}

// =============================================================================
// 记忆
// =============================================================================

// HandleRemember 写入记忆
// @Summary 写入记忆
// @Tags 记忆
// @Accept json
// @Produce json
// @Param request body api.MemoryStoreRequest true "记忆"
// @Success 201 {object} Response
// @Router /api/v1/memory [post]
func (h *KernelHandler) HandleRemember(w http.ResponseWriter, r *http.Request) {
	var req api.MemoryStoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := parseMemoryType(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	priority := floatOr(req.Priority, defaultMemoryPriority)
	item, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (memory.Item, error) {
		return k.Remember(ctx, t, req.Payload, priority)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusCreated, item)
}

// HandleRecall 检索记忆
// @Summary 检索记忆
// @Tags 记忆
// @Accept json
// @Produce json
// @Param request body api.MemoryRecallRequest true "检索条件"
// @Success 200 {object} Response
// @Router /api/v1/memory/recall [post]
func (h *KernelHandler) HandleRecall(w http.ResponseWriter, r *http.Request) {
	var req api.MemoryRecallRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := parseMemoryType(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultRecallLimit
	}
	threshold := floatOr(req.Threshold, defaultRecallThreshold)
	items, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) ([]memory.Item, error) {
		return k.Recall(ctx, t, req.Query, req.Limit, threshold)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []memory.Item{}
	}
	writeSuccessStatus(w, r, http.StatusOK, items)
}

// HandleClearMemory 清空记忆分区
// @Summary 清空记忆
// @Tags 记忆
// @Accept json
// @Produce json
// @Param request body api.MemoryClearRequest false "分区"
// @Success 200 {object} Response
// @Router /api/v1/memory/clear [post]
func (h *KernelHandler) HandleClearMemory(w http.ResponseWriter, r *http.Request) {
	var req api.MemoryClearRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	kinds := make([]memory.Type, 0, len(req.Types))
	for _, s := range req.Types {
		t, err := parseMemoryType(s)
		if err != nil || t == "" {
			h.fail(w, r, types.NewInvalidRequestError("unknown memory type %q", s))
			return
		}
		kinds = append(kinds, t)
	}
	stats, err := kernel.Call(r.Context(), h.owner, func(ctx context.Context, k *kernel.Kernel) (memory.Stats, error) {
		k.ClearMemory(ctx, kinds...)
		return k.Memory().Stats(), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, stats)
}

// =============================================================================
// 管理
// =============================================================================

// HandleTune 切换推理方法、规划算法或决策策略
// @Summary 调整内核策略
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body kernel.Tuning true "策略"
// @Success 200 {object} Response
// @Failure 400 {object} Response "UNKNOWN_STRATEGY"
// @Router /api/v1/tuning [put]
func (h *KernelHandler) HandleTune(w http.ResponseWriter, r *http.Request) {
	var req kernel.Tuning
	if !h.decode(w, r, &req) {
		return
	}
	stats, err := kernel.Call(r.Context(), h.owner, func(_ context.Context, k *kernel.Kernel) (kernel.Stats, error) {
		if err := k.ValidateTuning(req); err != nil {
			return kernel.Stats{}, err
		}
		k.Tune(req)
		return k.Stats(), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, stats)
}

// StatsResponse 内核与请求队列统计
type StatsResponse struct {
	Kernel kernel.Stats         `json:"kernel"`
	Queue  channel.MailboxStats `json:"queue"`
}

// HandleStats 返回统计
// @Summary 内核统计
// @Tags 管理
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /api/v1/stats [get]
func (h *KernelHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := kernel.Call(r.Context(), h.owner, func(_ context.Context, k *kernel.Kernel) (kernel.Stats, error) {
		return k.Stats(), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccessStatus(w, r, http.StatusOK, StatsResponse{Kernel: stats, Queue: h.owner.QueueStats()})
}
