package reasoning

import "sort"

// Contradiction records a subject holding two predicates declared mutually exclusive.
type Contradiction struct {
	Subject string    `json:"subject"`
	A       Assertion `json:"a"`
	B       Assertion `json:"b"`
}

// DeclareExclusive marks two predicates as mutually exclusive for any subject,
// e.g. ("blue", "red") for a sky.
func (e *Engine) DeclareExclusive(a, b string) {
	if a == b {
		return
	}
	if e.exclusive[a] == nil {
		e.exclusive[a] = make(map[string]bool)
	}
	if e.exclusive[b] == nil {
		e.exclusive[b] = make(map[string]bool)
	}
	e.exclusive[a][b] = true
	e.exclusive[b][a] = true
}

// Contradictions 一致性检查 - 列出违反互斥声明的事实对
func (e *Engine) Contradictions() []Contradiction {
	if len(e.exclusive) == 0 {
		return nil
	}

	bySubject := make(map[string][]Assertion)
	var subjects []string
	for _, wf := range e.kb.Facts() {
		if _, ok := bySubject[wf.Subject]; !ok {
			subjects = append(subjects, wf.Subject)
		}
		bySubject[wf.Subject] = append(bySubject[wf.Subject],
			Assertion{Predicate: wf.Predicate, Confidence: wf.Confidence})
	}
	sort.Strings(subjects)

	var out []Contradiction
	for _, s := range subjects {
		held := bySubject[s]
		for i := 0; i < len(held); i++ {
			for j := i + 1; j < len(held); j++ {
				if e.exclusive[held[i].Predicate][held[j].Predicate] {
					out = append(out, Contradiction{Subject: s, A: held[i], B: held[j]})
				}
			}
		}
	}
	return out
}

// Consistent reports whether no exclusive predicates are held together.
func (e *Engine) Consistent() bool {
	return len(e.Contradictions()) == 0
}
