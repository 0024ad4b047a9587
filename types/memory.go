package types

// MemoryCategory defines the memory store an item lives in.
type MemoryCategory string

const (
	// MemoryWorking is the short-term ring buffer of recent items.
	MemoryWorking MemoryCategory = "working"

	// MemoryEpisodic is the capacity-bounded experience buffer with importance-based forgetting.
	MemoryEpisodic MemoryCategory = "episodic"

	// MemorySemantic is the unbounded key -> item table.
	MemorySemantic MemoryCategory = "semantic"
)

// AllMemoryCategories lists every category in clear order.
var AllMemoryCategories = []MemoryCategory{MemoryWorking, MemoryEpisodic, MemorySemantic}

// ParseMemoryCategory validates a category name.
func ParseMemoryCategory(s string) (MemoryCategory, bool) {
	switch c := MemoryCategory(s); c {
	case MemoryWorking, MemoryEpisodic, MemorySemantic:
		return c, true
	default:
		return "", false
	}
}
