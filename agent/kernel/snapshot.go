package kernel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/memory"
	"github.com/BaSui01/agentkernel/agent/planning"
	"github.com/BaSui01/agentkernel/agent/reasoning"
	"github.com/BaSui01/agentkernel/types"
)

// SnapshotVersion is the format version written by Snapshot.
const SnapshotVersion = 1

// Snapshot 内核状态快照 - 只含纯数据，可直接 JSON 序列化
//
// 自定义规则、规划动作与各类回调函数不在快照中，恢复后需由调用方重新注册。
type Snapshot struct {
	Version   int                           `json:"version"`
	KernelID  string                        `json:"kernel_id"`
	CreatedAt time.Time                     `json:"created_at"`
	Method    reasoning.Method              `json:"method"`
	Algorithm planning.Algorithm            `json:"algorithm"`
	Facts     []reasoning.WeightedFact      `json:"facts"`
	Rules     []reasoning.Rule              `json:"rules"`
	Memory    map[memory.Type][]memory.Item `json:"memory"`
}

// Snapshot 导出事实、规则与全部记忆
func (k *Kernel) Snapshot(ctx context.Context) (*Snapshot, error) {
	_, span := k.startSpan(ctx, "snapshot")

	s := &Snapshot{
		Version:   SnapshotVersion,
		KernelID:  k.id,
		CreatedAt: time.Now().UTC(),
		Method:    k.engine.Method(),
		Algorithm: k.planner.Algorithm(),
		Facts:     k.engine.Facts(),
		Rules:     k.engine.Rules(),
		Memory:    make(map[memory.Type][]memory.Item, len(types.AllMemoryCategories)),
	}
	for _, t := range types.AllMemoryCategories {
		items, err := k.memory.Items(t)
		if err != nil {
			err = types.WrapError(err, types.ErrInternalError, "export memory")
			endSpan(span, err)
			return nil, err
		}
		s.Memory[t] = items
	}

	span.SetAttributes(attribute.Int("facts", len(s.Facts)), attribute.Int("rules", len(s.Rules)))
	endSpan(span, nil)
	k.logger.Info("snapshot taken", zap.Int("facts", len(s.Facts)), zap.Int("rules", len(s.Rules)))
	return s, nil
}

// Validate checks that s can be restored.
func (s *Snapshot) Validate() error {
	if s == nil {
		return types.NewError(types.ErrSnapshotCorrupted, "snapshot is nil")
	}
	if s.Version != SnapshotVersion {
		return types.NewError(types.ErrSnapshotCorrupted, "unsupported snapshot version").
			WithCause(fmt.Errorf("got version %d, want %d", s.Version, SnapshotVersion))
	}
	for t, items := range s.Memory {
		if _, ok := types.ParseMemoryCategory(string(t)); !ok {
			return types.NewError(types.ErrSnapshotCorrupted, fmt.Sprintf("unknown memory type %q", t))
		}
		for _, it := range items {
			if err := validatePriority(it.Priority); err != nil {
				return corrupted("invalid memory item", err)
			}
		}
	}
	for _, f := range s.Facts {
		err := validateFact(f.Fact)
		if err == nil {
			err = validateConfidence("fact", f.Confidence)
		}
		if err != nil {
			return corrupted("invalid fact", err)
		}
	}
	for _, r := range s.Rules {
		if err := validateRule(r.Premises, r.Conclusion, r.Confidence); err != nil {
			return corrupted("invalid rule", err)
		}
	}
	return nil
}

// corrupted 将校验错误归为 SNAPSHOT_CORRUPTED，原错误作为 cause
func corrupted(message string, cause error) *types.Error {
	return types.NewError(types.ErrSnapshotCorrupted, message).WithCause(cause)
}

// Restore 用快照替换当前知识库与记忆
//
// 先整体校验，校验失败时内核状态不变。恢复会清空已有的事实、规则（包括自定义规则）与记忆。
func (k *Kernel) Restore(ctx context.Context, s *Snapshot) error {
	_, span := k.startSpan(ctx, "restore")
	if err := s.Validate(); err != nil {
		endSpan(span, err)
		return err
	}

	k.engine.Clear()
	if s.Method != "" {
		k.engine.SetMethod(s.Method)
	}
	if s.Algorithm != "" {
		k.planner.SetAlgorithm(s.Algorithm)
	}
	for _, f := range s.Facts {
		k.engine.AddFact(f.Subject, f.Predicate, f.Confidence)
	}
	for _, r := range s.Rules {
		k.engine.AddRule(r.Premises, r.Conclusion, r.Confidence)
	}

	k.memory.Clear()
	for _, t := range types.AllMemoryCategories {
		if err := k.memory.Restore(t, s.Memory[t]); err != nil {
			err = types.WrapError(err, types.ErrSnapshotCorrupted, "restore memory")
			endSpan(span, err)
			return err
		}
	}

	span.SetAttributes(attribute.String("source_kernel", s.KernelID))
	endSpan(span, nil)
	k.logger.Info("snapshot restored",
		zap.String("source_kernel", s.KernelID),
		zap.Int("facts", len(s.Facts)),
		zap.Int("rules", len(s.Rules)))
	return nil
}
