package task

import (
	"io"
	"log/slog"
	"testing"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/event"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *agent.Registry, *event.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := event.NewHub(logger)
	registry := agent.NewRegistry(hub, logger)
	return NewCoordinator(registry, hub, logger), registry, hub
}

func intPtr(n int) *int { return &n }

func TestCoordinator_CreateDefaults(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	tk, err := c.Create(CreateRequest{Description: "build the thing"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.ID == "" {
		t.Fatal("Create returned empty ID")
	}
	if tk.Status != StatusPending {
		t.Errorf("Status = %q, want pending", tk.Status)
	}
	if tk.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want medium", tk.Priority)
	}
	if tk.Progress != 0 {
		t.Errorf("Progress = %d, want 0", tk.Progress)
	}
	if tk.RequiredCapabilities == nil {
		t.Error("RequiredCapabilities is nil, want empty set")
	}
}

func TestCoordinator_CreateRequiresDescription(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if _, err := c.Create(CreateRequest{}); err == nil {
		t.Fatal("Create accepted empty description")
	}
}

func TestCoordinator_CreateDedupsDependencies(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	tk, err := c.Create(CreateRequest{
		Description:  "dependent",
		Dependencies: []string{"d1", "d2", "d1", "d3", "d2"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []string{"d1", "d2", "d3"}
	if len(tk.Dependencies) != len(want) {
		t.Fatalf("Dependencies = %v, want %v", tk.Dependencies, want)
	}
	for i, dep := range want {
		if tk.Dependencies[i] != dep {
			t.Errorf("Dependencies[%d] = %q, want %q", i, tk.Dependencies[i], dep)
		}
	}
}

func TestCoordinator_StraightAssignment(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)

	registry.Register("a1", "", []string{"python", "backend"})

	tk, err := c.Create(CreateRequest{
		Description:          "write a script",
		RequiredCapabilities: []string{"python"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	asg, err := c.AssignOptimal(tk.ID)
	if err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if asg == nil {
		t.Fatal("AssignOptimal returned no assignment")
	}
	if asg.AgentID != "a1" {
		t.Errorf("AgentID = %q, want a1", asg.AgentID)
	}

	got, _ := c.Get(tk.ID)
	if got.Status != StatusAssigned {
		t.Errorf("task status = %q, want assigned", got.Status)
	}
	if got.AssignedAgent != "a1" {
		t.Errorf("AssignedAgent = %q, want a1", got.AssignedAgent)
	}

	a, _ := registry.Get("a1")
	if a.Status != agent.StatusBusy {
		t.Errorf("agent status = %q, want busy", a.Status)
	}
	if a.CurrentTask != tk.ID {
		t.Errorf("agent CurrentTask = %q, want %q", a.CurrentTask, tk.ID)
	}
}

func TestCoordinator_AssignRejectsNonPending(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "once"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.AssignOptimal(tk.ID); err == nil {
		t.Fatal("AssignOptimal accepted an already-assigned task")
	}
}

func TestCoordinator_AssignEmitsPendingWhenNoAgent(t *testing.T) {
	c, _, hub := newTestCoordinator(t)

	tk, _ := c.Create(CreateRequest{Description: "orphan"})
	asg, err := c.AssignOptimal(tk.ID)
	if err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if asg != nil {
		t.Fatal("AssignOptimal assigned with no agents connected")
	}

	events := hub.ByType(event.TypeTaskPending, 0)
	if len(events) != 1 {
		t.Fatalf("task_pending events = %d, want 1", len(events))
	}
	if events[0].TaskID != tk.ID {
		t.Errorf("event task = %q, want %q", events[0].TaskID, tk.ID)
	}
}

func TestCoordinator_DependencyGating(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)

	t1, _ := c.Create(CreateRequest{Description: "first", RequiredCapabilities: []string{"python"}})
	t2, _ := c.Create(CreateRequest{
		Description:          "second",
		RequiredCapabilities: []string{"python"},
		Dependencies:         []string{t1.ID},
	})

	registry.Register("a1", "", []string{"python"})

	if _, err := c.AssignOptimal(t1.ID); err != nil {
		t.Fatalf("assign t1: %v", err)
	}
	asg, err := c.AssignOptimal(t2.ID)
	if err != nil {
		t.Fatalf("assign t2: %v", err)
	}
	if asg != nil {
		t.Fatal("t2 assigned before its dependency completed")
	}
	got, _ := c.Get(t2.ID)
	if got.Status != StatusPending {
		t.Errorf("t2 status = %q, want pending", got.Status)
	}

	// Complete t1; ProcessPending should pick t2 up with the freed agent.
	if _, err := c.UpdateProgress(t1.ID, intPtr(100), "", ""); err != nil {
		t.Fatalf("complete t1: %v", err)
	}

	got, _ = c.Get(t2.ID)
	if got.Status != StatusAssigned {
		t.Errorf("t2 status = %q, want assigned after t1 completed", got.Status)
	}
	if got.AssignedAgent != "a1" {
		t.Errorf("t2 agent = %q, want a1", got.AssignedAgent)
	}
}

func TestCoordinator_ProgressClampAndMonotonic(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "steady"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}

	got, err := c.UpdateProgress(tk.ID, intPtr(150), "in_progress", "")
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want clamped to 100", got.Progress)
	}

	// A later, lower report must not move progress backwards.
	tk2, _ := c.Create(CreateRequest{Description: "monotone"})
	registry.Register("a2", "", nil)
	if _, err := c.AssignOptimal(tk2.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.UpdateProgress(tk2.ID, intPtr(60), "", ""); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err = c.UpdateProgress(tk2.ID, intPtr(30), "", "")
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got.Progress != 60 {
		t.Errorf("Progress = %d, want 60 after lower report", got.Progress)
	}
}

func TestCoordinator_ImplicitTransitions(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "implicit"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}

	// First nonzero progress starts the task; free-text status is ignored.
	got, err := c.UpdateProgress(tk.ID, intPtr(25), "Analysis complete", "")
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("Status = %q, want in_progress", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not set on first progress")
	}

	// Reaching 100 completes without an explicit status.
	got, err = c.UpdateProgress(tk.ID, intPtr(100), "", "")
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestCoordinator_CompletionFreesAgentAndRecordsPerformance(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "quick"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.UpdateProgress(tk.ID, nil, "in_progress", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.UpdateProgress(tk.ID, nil, "completed", "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := c.Get(tk.ID)
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want forced to 100 on completion", got.Progress)
	}

	a, _ := registry.Get("a1")
	if a.Status != agent.StatusOnline {
		t.Errorf("agent status = %q, want online after completion", a.Status)
	}
	if a.CurrentTask != "" {
		t.Errorf("agent CurrentTask = %q, want cleared", a.CurrentTask)
	}
	if a.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1", a.TasksCompleted)
	}

	if len(c.Assignments()) != 0 {
		t.Errorf("assignments = %d, want 0 after completion", len(c.Assignments()))
	}
}

func TestCoordinator_FailurePenalizesAgent(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "doomed"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.UpdateProgress(tk.ID, nil, "failed", "exploded"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := c.Get(tk.ID)
	if got.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}

	a, _ := registry.Get("a1")
	if a.Status != agent.StatusOnline {
		t.Errorf("agent status = %q, want online after failure", a.Status)
	}
	if a.PerformanceScore >= 1.0 {
		t.Errorf("PerformanceScore = %v, want penalized below 1.0", a.PerformanceScore)
	}
	if a.TasksCompleted != 0 {
		t.Errorf("TasksCompleted = %d, want 0", a.TasksCompleted)
	}
}

func TestCoordinator_TerminalStatesAbsorb(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	registry.Register("a1", "", nil)

	tk, _ := c.Create(CreateRequest{Description: "final"})
	if _, err := c.AssignOptimal(tk.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.UpdateProgress(tk.ID, intPtr(100), "", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := c.UpdateProgress(tk.ID, intPtr(50), "in_progress", ""); err == nil {
		t.Fatal("UpdateProgress accepted a transition out of completed")
	}
}

func TestCoordinator_UpdateRejectsPendingAndUnknown(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	tk, _ := c.Create(CreateRequest{Description: "unassigned"})
	if _, err := c.UpdateProgress(tk.ID, intPtr(10), "", ""); err == nil {
		t.Fatal("UpdateProgress accepted a pending task")
	}
	if _, err := c.UpdateProgress("no-such-task", intPtr(10), "", ""); err == nil {
		t.Fatal("UpdateProgress accepted an unknown task")
	}
}

func TestCoordinator_ProjectStatus(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)

	status := c.Project(registry.ActiveCount())
	if status.Status != "initializing" {
		t.Errorf("Status = %q, want initializing with no tasks", status.Status)
	}

	registry.Register("a1", "", nil)
	t1, _ := c.Create(CreateRequest{Description: "one"})
	c.Create(CreateRequest{Description: "two"}) //nolint:errcheck

	status = c.Project(registry.ActiveCount())
	if status.Status != "active" {
		t.Errorf("Status = %q, want active", status.Status)
	}
	if status.TotalTasks != 2 || status.CompletedTasks != 0 {
		t.Errorf("totals = %d/%d, want 2/0", status.CompletedTasks, status.TotalTasks)
	}
	if status.ActiveAgents != 1 {
		t.Errorf("ActiveAgents = %d, want 1", status.ActiveAgents)
	}

	if _, err := c.AssignOptimal(t1.ID); err != nil {
		t.Fatalf("AssignOptimal: %v", err)
	}
	if _, err := c.UpdateProgress(t1.ID, intPtr(100), "", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	status = c.Project(registry.ActiveCount())
	if status.Progress != 50 {
		t.Errorf("Progress = %d, want 50", status.Progress)
	}
}
