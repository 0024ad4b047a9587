package planning

import "context"

// search 通用图搜索
//
// 每次弹出计为一个探索节点，达到 MaxNodes 即放弃。弹出的状态若已访问则跳过；
// 否则标记访问、检查目标、展开全部前置条件成立的动作。已访问状态不再入队。
func (p *Planner) search(ctx context.Context, initial, goal State, mode searchMode) ([]string, float64, bool, error) {
	fr := mode.newFrontier()
	visited := make(map[string]bool)
	var seq uint64

	start := &node{state: initial.Clone(), path: []string{}}
	if mode.informed {
		start.f = p.h(start.state, goal)
	}
	fr.push(start)

	for fr.len() > 0 && p.stats.NodesExplored < p.config.MaxNodes {
		if err := ctx.Err(); err != nil {
			return nil, 0, false, err
		}

		current := fr.pop()
		p.stats.NodesExplored++

		key := CanonicalKey(current.state)
		if visited[key] {
			continue
		}
		visited[key] = true

		if current.state.Satisfies(goal) {
			return current.path, current.g, true, nil
		}
		if p.config.MaxPlanDepth > 0 && current.depth >= p.config.MaxPlanDepth {
			continue
		}

		for _, a := range p.actions {
			if !a.Precondition.Holds(current.state) {
				continue
			}
			next := a.apply(current.state)
			if visited[CanonicalKey(next)] {
				continue
			}

			seq++
			child := &node{
				state: next,
				path:  appendPath(current.path, a.Name),
				g:     current.g + a.Cost,
				depth: current.depth + 1,
				seq:   seq,
			}
			if mode.informed {
				child.f = child.g + p.h(next, goal)
			}
			fr.push(child)
		}
	}
	return nil, 0, false, nil
}

func (p *Planner) h(state, goal State) float64 {
	if p.heuristic == nil {
		return 0
	}
	return p.heuristic(state, goal)
}

// appendPath copies so sibling nodes never share a backing array.
func appendPath(path []string, name string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = name
	return out
}
