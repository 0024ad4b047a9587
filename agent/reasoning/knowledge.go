package reasoning

// Fact 事实 - (subject, predicate) 二元组，按值比较，可直接作为 map key
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
}

// F is shorthand for Fact{subject, predicate}.
func F(subject, predicate string) Fact {
	return Fact{Subject: subject, Predicate: predicate}
}

func (f Fact) String() string {
	return f.Subject + "->" + f.Predicate
}

// WeightedFact pairs a fact with its confidence. Used for export.
type WeightedFact struct {
	Fact
	Confidence float64 `json:"confidence"`
}

// Assertion is one query hit: a predicate held by the queried subject.
type Assertion struct {
	Predicate  string  `json:"predicate"`
	Confidence float64 `json:"confidence"`
}

// KnowledgeStore 知识库 - 持有事实及其置信度
//
// 插入顺序被保留，使 Query / Facts 的输出确定。事实只能被覆盖，不能单独撤回；
// Reset 是唯一的删除手段。
type KnowledgeStore struct {
	order       []Fact
	confidences map[Fact]float64
}

// NewKnowledgeStore creates an empty store.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{confidences: make(map[Fact]float64)}
}

// Assert upserts a fact. It reports whether the fact was new.
func (s *KnowledgeStore) Assert(f Fact, confidence float64) bool {
	_, exists := s.confidences[f]
	if !exists {
		s.order = append(s.order, f)
	}
	s.confidences[f] = confidence
	return !exists
}

// Has reports whether the fact is currently held.
func (s *KnowledgeStore) Has(f Fact) bool {
	_, ok := s.confidences[f]
	return ok
}

// HasAll reports whether every fact is held. Vacuously true for an empty set.
func (s *KnowledgeStore) HasAll(facts []Fact) bool {
	for _, f := range facts {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Confidence returns the confidence of a held fact.
func (s *KnowledgeStore) Confidence(f Fact) (float64, bool) {
	c, ok := s.confidences[f]
	return c, ok
}

// MinConfidence returns the minimum confidence among facts, 1.0 for an empty set.
// Missing facts count as 1.0.
func (s *KnowledgeStore) MinConfidence(facts []Fact) float64 {
	minConf := 1.0
	for i, f := range facts {
		c, ok := s.confidences[f]
		if !ok {
			c = 1.0
		}
		if i == 0 || c < minConf {
			minConf = c
		}
	}
	return minConf
}

// Query returns every predicate held for subject, in insertion order.
func (s *KnowledgeStore) Query(subject string) []Assertion {
	var out []Assertion
	for _, f := range s.order {
		if f.Subject == subject {
			out = append(out, Assertion{Predicate: f.Predicate, Confidence: s.confidences[f]})
		}
	}
	return out
}

// Facts returns a copy of all held facts with their confidences.
func (s *KnowledgeStore) Facts() []WeightedFact {
	out := make([]WeightedFact, 0, len(s.order))
	for _, f := range s.order {
		out = append(out, WeightedFact{Fact: f, Confidence: s.confidences[f]})
	}
	return out
}

// Len returns the number of held facts.
func (s *KnowledgeStore) Len() int {
	return len(s.order)
}

// Reset drops every fact.
func (s *KnowledgeStore) Reset() {
	s.order = nil
	s.confidences = make(map[Fact]float64)
}
