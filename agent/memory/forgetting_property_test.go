package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_EpisodicCapacityAndMinEviction 情节记忆从不超过容量，且被遗忘的总是当时重要性最低的条目
func TestProperty_EpisodicCapacityAndMinEviction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(rt, "capacity")
		ops := rapid.IntRange(1, 40).Draw(rt, "ops")

		clock := newClock()
		var evicted []Item
		m := New(Config{Type: TypeEpisodic, Capacity: capacity},
			WithClock(clock.now),
			WithEvictionHook(func(it Item) { evicted = append(evicted, it) }))

		for i := 0; i < ops; i++ {
			clock.advance(time.Duration(rapid.IntRange(0, 120).Draw(rt, fmt.Sprintf("gap_%d", i))) * time.Minute)

			if rapid.Bool().Draw(rt, fmt.Sprintf("recall_%d", i)) {
				_ = m.Recall(map[string]any{"n": rapid.IntRange(0, i).Draw(rt, fmt.Sprintf("q_%d", i))}, 1, 1.0)
				continue
			}

			before := m.ImportanceScores()
			full := m.Len() == capacity
			priority := rapid.Float64Range(0, 2).Draw(rt, fmt.Sprintf("priority_%d", i))
			evictedBefore := len(evicted)

			_, err := m.Store(map[string]any{"n": i}, priority)
			require.NoError(rt, err)
			assert.LessOrEqual(rt, m.Len(), capacity)

			if !full {
				assert.Equal(rt, evictedBefore, len(evicted))
				continue
			}
			require.Equal(rt, evictedBefore+1, len(evicted))
			victim := evicted[len(evicted)-1]
			for id, score := range before {
				assert.LessOrEqual(rt, before[victim.ID], score, "evicted %s but %s scored lower", victim.ID, id)
			}
		}
	})
}

// TestProperty_RecallContract recall 不超过 k 条、不低于阈值、按分数降序
func TestProperty_RecallContract(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := New(Config{Type: TypeEpisodic, Capacity: 50}, WithSimilarity(scoreField))
		n := rapid.IntRange(0, 20).Draw(rt, "n")
		for i := 0; i < n; i++ {
			_, _ = m.Store(map[string]any{"score": rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("s_%d", i))}, 1)
		}

		k := rapid.IntRange(0, 10).Draw(rt, "k")
		threshold := rapid.Float64Range(0, 1).Draw(rt, "threshold")
		got := m.Recall(nil, k, threshold)

		assert.LessOrEqual(rt, len(got), k)
		for i, it := range got {
			s := it.Payload["score"].(float64)
			assert.GreaterOrEqual(rt, s, threshold)
			if i > 0 {
				assert.LessOrEqual(rt, s, got[i-1].Payload["score"].(float64))
			}
		}
	})
}
