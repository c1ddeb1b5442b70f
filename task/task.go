// Package task defines the task model and the assignment coordinator.
package task

import "time"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority orders tasks for humans reading the dashboard. It is stored and
// echoed on the wire but the matcher does not consult it.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Task is a unit of work submitted to the hub.
type Task struct {
	ID                   string     `json:"id"`
	Description          string     `json:"description"`
	RequiredCapabilities []string   `json:"requiredCapabilities"`
	Priority             Priority   `json:"priority"`
	Status               Status     `json:"status"`
	AssignedAgent        string     `json:"assignedAgent,omitempty"`
	Dependencies         []string   `json:"dependencies,omitempty"`
	Progress             int        `json:"progress"`
	EstimatedDuration    float64    `json:"estimatedDuration,omitempty"` // milliseconds
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
}

// Assignment binds a task to the agent working it. One exists per task in
// assigned or in_progress.
type Assignment struct {
	TaskID     string    `json:"taskId"`
	AgentID    string    `json:"agentId"`
	AssignedAt time.Time `json:"assignedAt"`
	Reason     string    `json:"reason"`
}
