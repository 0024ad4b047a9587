package memory

import (
	"fmt"
	"testing"
)

// =============================================================================
// 🧠 Memory Layer Benchmarks
// =============================================================================

func BenchmarkEpisodic_Store(b *testing.B) {
	m := New(Config{Type: TypeEpisodic, Capacity: 1000, WorkingSize: 10})
	payload := map[string]any{"context": "user asked about weather", "location": "Beijing"}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := m.Store(payload, 0.8); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEpisodic_Recall(b *testing.B) {
	m := New(Config{Type: TypeEpisodic, Capacity: 10000, WorkingSize: 10})
	for i := 0; i < 1000; i++ {
		_, _ = m.Store(map[string]any{"topic": fmt.Sprintf("t%d", i%20), "n": i}, 0.5)
	}
	query := map[string]any{"topic": "t3"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Recall(query, 5, 0.5)
	}
}

func BenchmarkWorking_Ring(b *testing.B) {
	m := New(Config{Type: TypeWorking, Capacity: 100, WorkingSize: 16})
	payload := map[string]any{"step": 1}

	for i := 0; i < b.N; i++ {
		_, _ = m.Store(payload, 0.1)
	}
}
