package planning

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const graphNodes = 6

type edge struct {
	from, to int
	cost     float64
}

// randomGraph builds a small directed graph with integer edge costs in [1, 5].
func randomGraph(seed int64) []edge {
	rng := rand.New(rand.NewSource(seed))
	var edges []edge
	for i := 0; i < graphNodes; i++ {
		for j := 0; j < graphNodes; j++ {
			if i != j && rng.Float64() < 0.35 {
				edges = append(edges, edge{from: i, to: j, cost: float64(1 + rng.Intn(5))})
			}
		}
	}
	return edges
}

func graphActions(edges []edge) []Action {
	actions := make([]Action, 0, len(edges))
	for _, e := range edges {
		actions = append(actions, Action{
			Name:         fmt.Sprintf("%d->%d", e.from, e.to),
			Precondition: Requires(State{"pos": e.from}),
			Effect:       Assign(State{"pos": e.to}),
			Cost:         e.cost,
		})
	}
	return actions
}

// shortest returns min total cost and min hop count from 0 to target (Floyd–Warshall).
func shortest(edges []edge, target int) (float64, int) {
	cost := [graphNodes][graphNodes]float64{}
	hops := [graphNodes][graphNodes]int{}
	for i := range cost {
		for j := range cost[i] {
			cost[i][j] = math.Inf(1)
			hops[i][j] = math.MaxInt32
		}
		cost[i][i] = 0
		hops[i][i] = 0
	}
	for _, e := range edges {
		cost[e.from][e.to] = math.Min(cost[e.from][e.to], e.cost)
		hops[e.from][e.to] = 1
	}
	for k := 0; k < graphNodes; k++ {
		for i := 0; i < graphNodes; i++ {
			for j := 0; j < graphNodes; j++ {
				if cost[i][k]+cost[k][j] < cost[i][j] {
					cost[i][j] = cost[i][k] + cost[k][j]
				}
				if hops[i][k] != math.MaxInt32 && hops[k][j] != math.MaxInt32 && hops[i][k]+hops[k][j] < hops[i][j] {
					hops[i][j] = hops[i][k] + hops[k][j]
				}
			}
		}
	}
	return cost[0][target], hops[0][target]
}

func planCost(plan []string, edges []edge) float64 {
	byName := make(map[string]float64, len(edges))
	for _, e := range edges {
		byName[fmt.Sprintf("%d->%d", e.from, e.to)] = e.cost
	}
	total := 0.0
	for _, name := range plan {
		total += byName[name]
	}
	return total
}

// admissible: every edge costs at least 1, so "1 unless at goal" never overstates.
func admissible(s, g State) float64 {
	if s.Satisfies(g) {
		return 0
	}
	return 1
}

func TestProperty_AStarReturnsMinimumCost(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("a_star plan cost equals the true minimum cost", prop.ForAll(
		func(seed int64, target int) bool {
			edges := randomGraph(seed)
			best, _ := shortest(edges, target)

			p := NewPlanner(Config{Algorithm: AlgorithmAStar, MaxNodes: 10000}, nil)
			p.SetHeuristic(admissible)
			plan, err := p.CreatePlan(context.Background(), State{"pos": 0}, State{"pos": target}, graphActions(edges))
			if err != nil {
				return false
			}
			if math.IsInf(best, 1) {
				return len(plan) == 0 && !p.Stats().Found
			}
			return p.Stats().Found && planCost(plan, edges) == best && p.Stats().PlanCost == best
		},
		gen.Int64(),
		gen.IntRange(0, graphNodes-1),
	))

	properties.TestingRun(t)
}

func TestProperty_BFSReturnsFewestActions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("bfs plan length equals the minimum hop count", prop.ForAll(
		func(seed int64, target int) bool {
			edges := randomGraph(seed)
			_, fewest := shortest(edges, target)

			p := NewPlanner(Config{Algorithm: AlgorithmBFS, MaxNodes: 10000}, nil)
			plan, err := p.CreatePlan(context.Background(), State{"pos": 0}, State{"pos": target}, graphActions(edges))
			if err != nil {
				return false
			}
			if fewest == math.MaxInt32 {
				return len(plan) == 0
			}
			return len(plan) == fewest
		},
		gen.Int64(),
		gen.IntRange(0, graphNodes-1),
	))

	properties.TestingRun(t)
}

func TestProperty_NeverRevisitsState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("explored nodes never exceed distinct reachable states", prop.ForAll(
		func(seed int64) bool {
			edges := randomGraph(seed)
			expansions := make(map[int]int)
			actions := graphActions(edges)

			// probe is checked once per expansion and never applies.
			counting := Action{
				Name: "probe",
				Precondition: ConditionFunc(func(s State) bool {
					expansions[s["pos"].(int)]++
					return false
				}),
				Effect: Assign(State{}),
			}

			p := NewPlanner(Config{Algorithm: AlgorithmBFS, MaxNodes: 10000}, nil)
			_, err := p.CreatePlan(context.Background(), State{"pos": 0}, State{"pos": -1}, append(actions, counting))
			if err != nil {
				return false
			}
			for _, n := range expansions {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
