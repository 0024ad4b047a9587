package api

import (
	"time"

	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
)

// =============================================================================
// 知识库
// =============================================================================

// FactRequest 添加事实
// @Description 添加事实请求
type FactRequest struct {
	Subject   string `json:"subject" example:"socrates"`
	Predicate string `json:"predicate" example:"human"`
	// 置信度 [0,1]，缺省为 1
	Confidence *float64 `json:"confidence,omitempty" example:"1.0"`
}

// RuleRequest 添加规则
// @Description 添加规则请求
type RuleRequest struct {
	Premises   []reasoning.Fact `json:"premises"`
	Conclusion reasoning.Fact   `json:"conclusion"`
	// 规则置信度 [0,1]，缺省为 1
	Confidence *float64 `json:"confidence,omitempty" example:"0.9"`
}

// InferResponse 推理结果
type InferResponse struct {
	Method  string           `json:"method"`
	Derived []reasoning.Fact `json:"derived"`
	Count   int              `json:"count"`
}

// QueryResponse 查询结果
type QueryResponse struct {
	Subject    string                `json:"subject"`
	Assertions []reasoning.Assertion `json:"assertions"`
}

// FactRef 引用单条事实（explain / prove）
type FactRef struct {
	Subject   string `json:"subject" example:"socrates"`
	Predicate string `json:"predicate" example:"mortal"`
}

// ExplainResponse 推导解释
type ExplainResponse struct {
	Fact        reasoning.Fact `json:"fact"`
	Explanation string         `json:"explanation"`
}

// =============================================================================
// 规划与决策
// =============================================================================

// ActionSpec 声明式动作：requires 为前置部分状态，assign 为覆盖写入的部分状态
type ActionSpec struct {
	Name     string         `json:"name" example:"open_door"`
	Requires planning.State `json:"requires,omitempty"`
	Assign   planning.State `json:"assign"`
	Cost     float64        `json:"cost,omitempty" example:"1"`
}

// PlanRequest 规划请求。actions 为空时使用已注册动作集
type PlanRequest struct {
	Initial planning.State `json:"initial"`
	Goal    planning.State `json:"goal"`
	Actions []ActionSpec   `json:"actions,omitempty"`
}

// PlanResponse 规划结果
type PlanResponse struct {
	Plan          []string           `json:"plan"`
	Found         bool               `json:"found"`
	Algorithm     planning.Algorithm `json:"algorithm"`
	NodesExplored int                `json:"nodes_explored"`
	Cost          float64            `json:"cost"`
}

// DecideRequest 决策请求
type DecideRequest struct {
	State   map[string]any `json:"state"`
	Actions []string       `json:"actions"`
}

// DecideResponse 决策结果
type DecideResponse struct {
	Action  string `json:"action,omitempty"`
	Decided bool   `json:"decided"`
}

// =============================================================================
// 记忆
// =============================================================================

// MemoryStoreRequest 写入记忆，type 为空时写入默认分区，priority 缺省为 1
type MemoryStoreRequest struct {
	Type     string         `json:"type,omitempty" example:"episodic"`
	Payload  map[string]any `json:"payload"`
	Priority *float64       `json:"priority,omitempty" example:"1"`
}

// MemoryRecallRequest 检索记忆，limit 缺省为 5，threshold 缺省为 0.5
type MemoryRecallRequest struct {
	Type      string   `json:"type,omitempty" example:"episodic"`
	Query     any      `json:"query"`
	Limit     int      `json:"limit,omitempty" example:"5"`
	Threshold *float64 `json:"threshold,omitempty" example:"0.5"`
}

// MemoryClearRequest 清空记忆，types 为空时清空全部分区
type MemoryClearRequest struct {
	Types []string `json:"types,omitempty"`
}

// =============================================================================
// 快照
// =============================================================================

// SnapshotSaved 保存结果
type SnapshotSaved struct {
	ID       string    `json:"id"`
	KernelID string    `json:"kernel_id"`
	Facts    int       `json:"facts"`
	Rules    int       `json:"rules"`
	Memories int       `json:"memories"`
	SavedAt  time.Time `json:"saved_at"`
}

// =============================================================================
// 配置管理
// =============================================================================

// ConfigFieldUpdate 更新单个配置字段，path 使用 Go 字段路径（如 Kernel.Planner.Algorithm）
type ConfigFieldUpdate struct {
	Path  string `json:"path" example:"Kernel.Planner.Algorithm"`
	Value any    `json:"value"`
}

// ConfigRollbackRequest 回滚配置，version 为 0 时回滚到上一版本
type ConfigRollbackRequest struct {
	Version int `json:"version,omitempty"`
}
