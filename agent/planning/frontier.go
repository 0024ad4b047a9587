package planning

import "container/heap"

// node 搜索节点
type node struct {
	state State
	path  []string
	g     float64
	f     float64
	depth int
	seq   uint64
}

// frontier is the open list; the discipline decides the search order.
type frontier interface {
	push(n *node)
	pop() *node
	len() int
}

// ============================================================
// FIFO / LIFO
// ============================================================

type fifo struct {
	items []*node
	head  int
}

func (q *fifo) push(n *node) { q.items = append(q.items, n) }

func (q *fifo) pop() *node {
	n := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append([]*node(nil), q.items[q.head:]...)
		q.head = 0
	}
	return n
}

func (q *fifo) len() int { return len(q.items) - q.head }

type lifo struct {
	items []*node
}

func (s *lifo) push(n *node) { s.items = append(s.items, n) }

func (s *lifo) pop() *node {
	last := len(s.items) - 1
	n := s.items[last]
	s.items[last] = nil
	s.items = s.items[:last]
	return n
}

func (s *lifo) len() int { return len(s.items) }

// ============================================================
// Priority (f = g + h, ties by push order)
// ============================================================

type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(*node)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

type priority struct {
	h nodeHeap
}

func (p *priority) push(n *node) { heap.Push(&p.h, n) }

func (p *priority) pop() *node { return heap.Pop(&p.h).(*node) }

func (p *priority) len() int { return p.h.Len() }
