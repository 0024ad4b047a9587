package memory

import (
	"time"

	"go.uber.org/zap"
)

// Importance 重要性分数 = priority × (1 + accessCount) × recency
//
// recency = 1 / (1 + 以小时计的年龄)。priority 为 0 的条目总是最先被遗忘。
func Importance(priority float64, accessCount int, createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	recency := 1.0 / (1.0 + ageHours)
	return priority * float64(1+accessCount) * recency
}

// importanceOf scores a stored episodic item with the live access bookkeeping.
func (m *Memory) importanceOf(it *Item, now time.Time) float64 {
	return Importance(it.Priority, m.accessCounts[it.ID], it.CreatedAt, now)
}

// forgetLeastImportant removes the single lowest-importance episodic item.
// Ties go to the earliest stored item.
func (m *Memory) forgetLeastImportant() {
	if len(m.episodic) == 0 {
		return
	}

	now := m.now()
	victim := 0
	lowest := m.importanceOf(m.episodic[0], now)
	for i := 1; i < len(m.episodic); i++ {
		if score := m.importanceOf(m.episodic[i], now); score < lowest {
			victim, lowest = i, score
		}
	}

	forgotten := m.episodic[victim]
	m.episodic = append(m.episodic[:victim], m.episodic[victim+1:]...)
	m.evictions++

	m.logger.Debug("memory forgotten",
		zap.String("id", forgotten.ID),
		zap.Float64("importance", lowest))

	if m.onEvict != nil {
		evicted := forgotten.clone()
		evicted.AccessCount = m.accessCounts[forgotten.ID]
		m.onEvict(evicted)
	}
}

// ImportanceScores returns the current importance of every episodic item, keyed by ID.
func (m *Memory) ImportanceScores() map[string]float64 {
	now := m.now()
	out := make(map[string]float64, len(m.episodic))
	for _, it := range m.episodic {
		out[it.ID] = m.importanceOf(it, now)
	}
	return out
}
