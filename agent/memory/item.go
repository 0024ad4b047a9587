package memory

import (
	"time"

	"github.com/BaSui01/agentkernel/types"
)

// Type 记忆分区
type Type = types.MemoryCategory

const (
	TypeWorking  = types.MemoryWorking
	TypeEpisodic = types.MemoryEpisodic
	TypeSemantic = types.MemorySemantic
)

// Item 记忆条目 - 调用方载荷加上生成的元数据
type Item struct {
	ID          string         `json:"id"`
	Key         string         `json:"key,omitempty"`
	Payload     map[string]any `json:"payload"`
	Priority    float64        `json:"priority"`
	AccessCount int            `json:"access_count"`
	CreatedAt   time.Time      `json:"created_at"`
	LastAccess  time.Time      `json:"last_access,omitempty"`
}

// clone copies the item and its top-level payload map.
func (it *Item) clone() Item {
	out := *it
	out.Payload = cloneMap(it.Payload)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
