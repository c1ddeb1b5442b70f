// Package agent defines the agent model and the capability-scored registry.
package agent

import "time"

// Status represents the current availability of an agent.
type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Agent is a registered worker endpoint. The hub tracks its capabilities,
// availability, and a rolling performance score; the agent's actual work
// happens in an external process reached through the comms table.
type Agent struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Capabilities     []string  `json:"capabilities"`
	Status           Status    `json:"status"`
	CurrentTask      string    `json:"currentTask,omitempty"`
	LastSeen         time.Time `json:"lastSeen"`
	PerformanceScore float64   `json:"performanceScore"`
	TasksCompleted   int       `json:"tasksCompleted"`
	AverageTaskTime  float64   `json:"averageTaskTime"` // milliseconds
}

// HasCapabilities reports whether the agent's capability set covers all of
// required. Matching is exact and case-sensitive.
func (a *Agent) HasCapabilities(required []string) bool {
	return len(a.MissingCapabilities(required)) == 0
}

// MissingCapabilities returns the required capabilities the agent lacks, in
// the order they were requested.
func (a *Agent) MissingCapabilities(required []string) []string {
	var missing []string
	for _, req := range required {
		found := false
		for _, c := range a.Capabilities {
			if c == req {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	return missing
}
