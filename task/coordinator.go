package task

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/event"
)

// CreateRequest carries the client-supplied fields for a new task.
type CreateRequest struct {
	Description          string
	RequiredCapabilities []string
	Priority             string
	Dependencies         []string
	EstimatedDuration    float64
}

// ProjectStatus is the aggregate view reported to dashboards.
type ProjectStatus struct {
	Status         string `json:"status"` // initializing, active, completed
	Progress       int    `json:"progress"`
	ActiveAgents   int    `json:"activeAgents"`
	TotalTasks     int    `json:"totalTasks"`
	CompletedTasks int    `json:"completedTasks"`
}

// Coordinator owns tasks and their lifecycle: creation, dependency-gated
// assignment through the registry, progress tracking, and re-examination of
// pending work whenever a task completes. Tasks are never deleted; they are
// retained for history and dependency resolution.
type Coordinator struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	order       []string // creation order, drives ProcessPending iteration
	assignments map[string]*Assignment

	registry *agent.Registry
	hub      *event.Hub
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator assigning through registry and
// publishing to hub.
func NewCoordinator(registry *agent.Registry, hub *event.Hub, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		tasks:       make(map[string]*Task),
		assignments: make(map[string]*Assignment),
		registry:    registry,
		hub:         hub,
		logger:      logger,
	}
}

// Create validates and stores a new pending task.
func (c *Coordinator) Create(req CreateRequest) (*Task, error) {
	if req.Description == "" {
		return nil, fmt.Errorf("task description is required")
	}

	caps := req.RequiredCapabilities
	if caps == nil {
		caps = []string{}
	}

	priority := Priority(req.Priority)
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		priority = PriorityMedium
	}

	t := &Task{
		ID:                   uuid.NewString(),
		Description:          req.Description,
		RequiredCapabilities: caps,
		Priority:             priority,
		Status:               StatusPending,
		Dependencies:         dedup(req.Dependencies),
		Progress:             0,
		EstimatedDuration:    req.EstimatedDuration,
		CreatedAt:            time.Now().UTC(),
	}

	c.mu.Lock()
	c.tasks[t.ID] = t
	c.order = append(c.order, t.ID)
	snapshot := *t
	c.mu.Unlock()

	c.logger.Info("task created",
		slog.String("id", t.ID),
		slog.Any("requiredCapabilities", caps),
	)
	c.hub.Publish(event.Event{
		Type:    event.TypeTaskCreated,
		TaskID:  t.ID,
		Payload: map[string]any{"task": snapshot},
	})
	return &snapshot, nil
}

// AssignOptimal attempts to place a pending task on the best available
// agent. It returns nil with no error when the task must stay pending,
// either because dependencies are unmet (silent) or because no viable agent
// is connected (a task_pending event is broadcast). A task in any state
// other than pending is an error.
func (c *Coordinator) AssignOptimal(taskID string) (*Assignment, error) {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	if t.Status != StatusPending {
		c.mu.Unlock()
		return nil, fmt.Errorf("task %s is %s, not pending", taskID, t.Status)
	}

	if unmet := c.unmetLocked(t); len(unmet) > 0 {
		c.mu.Unlock()
		return nil, nil
	}

	selected := c.registry.Select(t.RequiredCapabilities)
	if selected == nil {
		snapshot := *t
		c.mu.Unlock()
		c.hub.Publish(event.Event{
			Type:   event.TypeTaskPending,
			TaskID: taskID,
			Payload: map[string]any{
				"task":   snapshot,
				"reason": "no suitable agent available",
			},
		})
		return nil, nil
	}

	asg := &Assignment{
		TaskID:     taskID,
		AgentID:    selected.ID,
		AssignedAt: time.Now().UTC(),
		Reason: fmt.Sprintf("%s scored %.2f for capabilities %v",
			selected.ID, c.registry.Score(selected, t.RequiredCapabilities), t.RequiredCapabilities),
	}
	t.Status = StatusAssigned
	t.AssignedAgent = selected.ID
	c.assignments[taskID] = asg
	snapshot := *t

	if err := c.registry.SetStatus(selected.ID, agent.StatusBusy, &taskID); err != nil {
		c.logger.Error("mark agent busy", slog.String("agent", selected.ID), slog.Any("err", err))
	}
	c.mu.Unlock()

	c.logger.Info("task assigned",
		slog.String("task", taskID),
		slog.String("agent", selected.ID),
	)
	c.hub.Publish(event.Event{
		Type:    event.TypeTaskAssigned,
		TaskID:  taskID,
		AgentID: selected.ID,
		Payload: map[string]any{
			"task":   snapshot,
			"reason": asg.Reason,
		},
	})
	return asg, nil
}

// UpdateProgress applies a progress report from the agent working a task.
// progress is clamped to [0, 100] and never decreases. status, when it names
// a known lifecycle state, drives an explicit transition; any other value is
// treated as a free-text annotation the way the demo agents use it. With no
// explicit status, reaching 100 completes the task and the first nonzero
// progress on an assigned task starts it.
func (c *Coordinator) UpdateProgress(taskID string, progress *int, status, message string) (*Task, error) {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	if t.Status.Terminal() {
		c.mu.Unlock()
		return nil, fmt.Errorf("task %s is already %s", taskID, t.Status)
	}
	if t.Status == StatusPending {
		c.mu.Unlock()
		return nil, fmt.Errorf("task %s has not been assigned", taskID)
	}

	if progress != nil {
		p := *progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p > t.Progress {
			t.Progress = p
		}
	}

	target := Status(status)
	switch target {
	case StatusInProgress, StatusCompleted, StatusFailed:
	default:
		// Free-text status ("Analysis complete") or absent: derive the
		// transition from progress alone.
		target = ""
		if t.Status == StatusAssigned && t.Progress > 0 {
			target = StatusInProgress
		}
		if t.Progress >= 100 {
			target = StatusCompleted
		}
	}

	completed := false
	switch target {
	case StatusInProgress:
		if t.Status == StatusAssigned {
			t.Status = StatusInProgress
			now := time.Now().UTC()
			if t.StartedAt == nil {
				t.StartedAt = &now
			}
		}
	case StatusCompleted:
		c.finishLocked(t, true)
		completed = true
	case StatusFailed:
		c.finishLocked(t, false)
	}
	snapshot := *t
	c.mu.Unlock()

	payload := map[string]any{"task": snapshot}
	if message != "" {
		payload["message"] = message
	}
	c.hub.Publish(event.Event{
		Type:    event.TypeTaskProgressUpdated,
		TaskID:  taskID,
		AgentID: snapshot.AssignedAgent,
		Payload: payload,
	})

	if completed {
		c.ProcessPending()
	}
	return &snapshot, nil
}

// finishLocked moves a task to its terminal state, settles the assignment
// record, and releases the agent. Caller holds c.mu.
func (c *Coordinator) finishLocked(t *Task, success bool) {
	now := time.Now().UTC()
	t.CompletedAt = &now
	if success {
		t.Status = StatusCompleted
		t.Progress = 100
	} else {
		t.Status = StatusFailed
	}
	delete(c.assignments, t.ID)

	if t.AssignedAgent == "" {
		return
	}

	duration := 0.0
	if success && t.StartedAt != nil {
		duration = float64(now.Sub(*t.StartedAt).Milliseconds())
	}
	if err := c.registry.RecordPerformance(t.AssignedAgent, duration, success); err != nil {
		c.logger.Warn("record performance", slog.String("agent", t.AssignedAgent), slog.Any("err", err))
	}
	clear := ""
	if err := c.registry.SetStatus(t.AssignedAgent, agent.StatusOnline, &clear); err != nil {
		c.logger.Warn("release agent", slog.String("agent", t.AssignedAgent), slog.Any("err", err))
	}
}

// ProcessPending re-examines every pending task in creation order and tries
// to assign it. Individual failures are logged, never fatal.
func (c *Coordinator) ProcessPending() {
	c.mu.RLock()
	var pending []string
	for _, id := range c.order {
		if c.tasks[id].Status == StatusPending {
			pending = append(pending, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range pending {
		if _, err := c.AssignOptimal(id); err != nil {
			c.logger.Warn("process pending", slog.String("task", id), slog.Any("err", err))
		}
	}
}

// UnmetDependencies returns the dependency ids of taskID that are not yet
// completed. Unknown dependency ids count as unmet.
func (c *Coordinator) UnmetDependencies(taskID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return nil
	}
	return c.unmetLocked(t)
}

func (c *Coordinator) unmetLocked(t *Task) []string {
	var unmet []string
	for _, dep := range t.Dependencies {
		d, ok := c.tasks[dep]
		if !ok || d.Status != StatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Get returns a snapshot of the task with the given id.
func (c *Coordinator) Get(id string) (*Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	snapshot := *t
	return &snapshot, true
}

// List returns snapshots of all tasks in creation order.
func (c *Coordinator) List() []*Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Task, 0, len(c.tasks))
	for _, id := range c.order {
		snapshot := *c.tasks[id]
		out = append(out, &snapshot)
	}
	return out
}

// Assignments returns snapshots of the current assignment records.
func (c *Coordinator) Assignments() []*Assignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Assignment, 0, len(c.assignments))
	for _, id := range c.order {
		if asg, ok := c.assignments[id]; ok {
			snapshot := *asg
			out = append(out, &snapshot)
		}
	}
	return out
}

// Project summarizes overall coordination state for dashboards.
func (c *Coordinator) Project(activeAgents int) ProjectStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := len(c.tasks)
	completed := 0
	for _, t := range c.tasks {
		if t.Status == StatusCompleted {
			completed++
		}
	}

	status := "active"
	progress := 0
	switch {
	case total == 0:
		status = "initializing"
	case completed == total:
		status = "completed"
		progress = 100
	default:
		progress = int(math.Round(100 * float64(completed) / float64(total)))
	}

	return ProjectStatus{
		Status:         status,
		Progress:       progress,
		ActiveAgents:   activeAgents,
		TotalTasks:     total,
		CompletedTasks: completed,
	}
}

func dedup(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
