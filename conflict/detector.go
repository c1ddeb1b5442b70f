// Package conflict inspects coordination state for anomalies: agents bound
// to more than one live task, dependency cycles, and capability mismatches.
// Detection is pure over snapshots; it never mutates hub state.
package conflict

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/task"
)

// Type identifies the conflict class.
type Type string

const (
	TypeResourceContention Type = "resource_contention"
	TypeDependencyDeadlock Type = "dependency_deadlock"
	TypeCapabilityMismatch Type = "capability_mismatch"
)

// Severity ranks how urgently a conflict needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is a single detected anomaly with a suggested resolution.
type Conflict struct {
	ID         string   `json:"id"`
	Type       Type     `json:"type"`
	TaskIDs    []string `json:"taskIds,omitempty"`
	AgentIDs   []string `json:"agentIds,omitempty"`
	Severity   Severity `json:"severity"`
	Resolution string   `json:"resolution"`
}

// Detect runs all three checks over the given snapshots and returns the
// findings in detection order.
func Detect(agents []*agent.Agent, tasks []*task.Task) []Conflict {
	var conflicts []Conflict
	conflicts = append(conflicts, detectContention(agents, tasks)...)
	conflicts = append(conflicts, detectDeadlocks(tasks)...)
	conflicts = append(conflicts, detectMismatches(agents, tasks)...)
	return conflicts
}

// detectContention finds busy agents holding more than one live task. The
// assignment path never produces this; it surfaces invariant violations such
// as a re-registration that orphaned an earlier assignment.
func detectContention(agents []*agent.Agent, tasks []*task.Task) []Conflict {
	byAgent := make(map[string][]string)
	for _, t := range tasks {
		if t.AssignedAgent == "" || t.Status.Terminal() || t.Status == task.StatusPending {
			continue
		}
		byAgent[t.AssignedAgent] = append(byAgent[t.AssignedAgent], t.ID)
	}

	var conflicts []Conflict
	for _, a := range agents {
		held := byAgent[a.ID]
		if a.Status != agent.StatusBusy || len(held) < 2 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ID:       uuid.NewString(),
			Type:     TypeResourceContention,
			TaskIDs:  held,
			AgentIDs: []string{a.ID},
			Severity: SeverityMedium,
			Resolution: fmt.Sprintf("agent %s holds %d live tasks; redistribute all but one",
				a.ID, len(held)),
		})
	}
	return conflicts
}

// detectDeadlocks finds cycles in the dependency graph using depth-first
// traversal with a recursion stack. Each cycle is reported once, in the
// order traversal discovered it.
func detectDeadlocks(tasks []*task.Task) []Conflict {
	deps := make(map[string][]string, len(tasks))
	var order []string
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
		order = append(order, t.ID)
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(tasks))
	var stack []string
	var conflicts []Conflict

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Cycle: everything on the stack from dep onward.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				conflicts = append(conflicts, Conflict{
					ID:       uuid.NewString(),
					Type:     TypeDependencyDeadlock,
					TaskIDs:  cycle,
					Severity: SeverityHigh,
					Resolution: fmt.Sprintf("break the dependency cycle %s",
						strings.Join(cycle, " -> ")),
				})
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range order {
		if color[id] == white {
			visit(id)
		}
	}
	return conflicts
}

// detectMismatches finds live assignments where the agent does not cover the
// task's required capabilities. Selection allows partial coverage when
// nothing better is available, so this is expected occasionally and ranked
// low.
func detectMismatches(agents []*agent.Agent, tasks []*task.Task) []Conflict {
	byID := make(map[string]*agent.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	var conflicts []Conflict
	for _, t := range tasks {
		if t.Status != task.StatusAssigned && t.Status != task.StatusInProgress {
			continue
		}
		a, ok := byID[t.AssignedAgent]
		if !ok {
			continue
		}
		missing := a.MissingCapabilities(t.RequiredCapabilities)
		if len(missing) == 0 {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ID:       uuid.NewString(),
			Type:     TypeCapabilityMismatch,
			TaskIDs:  []string{t.ID},
			AgentIDs: []string{a.ID},
			Severity: SeverityLow,
			Resolution: fmt.Sprintf("agent %s lacks %s; reassign when a covering agent connects",
				a.ID, strings.Join(missing, ", ")),
		})
	}
	return conflicts
}
