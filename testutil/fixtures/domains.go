package fixtures

import (
	"fmt"

	"github.com/BaSui01/agentkernel/agent/planning"
)

// Domain 规划问题：初始状态、目标与可用动作
type Domain struct {
	Initial planning.State
	Goal    planning.State
	Actions []planning.Action
}

// Corridor 一维走廊，位置 0..n，可前进或后退一格，目标是从 0 走到 n。
// 最优计划长度为 n。
func Corridor(n int) Domain {
	actions := make([]planning.Action, 0, 2*n)
	for i := 0; i < n; i++ {
		actions = append(actions,
			planning.Action{
				Name:         fmt.Sprintf("forward_%d", i),
				Precondition: planning.Requires(planning.State{"at": i}),
				Effect:       planning.Assign(planning.State{"at": i + 1}),
				Cost:         1,
			},
			planning.Action{
				Name:         fmt.Sprintf("back_%d", i+1),
				Precondition: planning.Requires(planning.State{"at": i + 1}),
				Effect:       planning.Assign(planning.State{"at": i}),
				Cost:         1,
			},
		)
	}
	return Domain{
		Initial: planning.State{"at": 0},
		Goal:    planning.State{"at": n},
		Actions: actions,
	}
}

// KeyAndDoor 取钥匙、开门、进屋。直接撞门代价高，最优计划为
// get_key → open → enter（代价 3）。
func KeyAndDoor() Domain {
	return Domain{
		Initial: planning.State{"has_key": false, "door": "closed", "inside": false},
		Goal:    planning.State{"inside": true},
		Actions: []planning.Action{
			{
				Name:         "get_key",
				Precondition: planning.Requires(planning.State{"has_key": false}),
				Effect:       planning.Assign(planning.State{"has_key": true}),
				Cost:         1,
			},
			{
				Name:         "open",
				Precondition: planning.Requires(planning.State{"has_key": true, "door": "closed"}),
				Effect:       planning.Assign(planning.State{"door": "open"}),
				Cost:         1,
			},
			{
				Name:         "ram",
				Precondition: planning.Requires(planning.State{"door": "closed"}),
				Effect:       planning.Assign(planning.State{"door": "broken"}),
				Cost:         10,
			},
			{
				Name:         "enter",
				Precondition: planning.ConditionFunc(func(s planning.State) bool {
					return s["door"] == "open" || s["door"] == "broken"
				}),
				Effect: planning.Assign(planning.State{"inside": true}),
				Cost:   1,
			},
		},
	}
}
