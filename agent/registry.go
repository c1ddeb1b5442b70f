package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paradiselabs-ai/ACT/event"
)

// Selection score weights. Capability coverage dominates; performance and
// workload refine among comparable candidates.
const (
	weightCapability  = 0.6
	weightPerformance = 0.3
	weightWorkload    = 0.1
)

// Performance score bounds and the duration (ms) treated as baseline
// efficiency 1.0.
const (
	scoreFloor       = 0.1
	scoreCeiling     = 2.0
	baselineTaskMS   = 60000.0
	performanceDecay = 0.9
	failurePenalty   = 0.8
)

// Liveness sweep defaults.
const (
	SweepInterval  = time.Minute
	StaleThreshold = 5 * time.Minute
)

// Registry maintains the set of known agents and provides scored selection.
// An agent record is created on first registration and persists through
// offline transitions; re-registration rehydrates performance counters.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string // insertion order, for deterministic tie-breaks
	hub    *event.Hub
	logger *slog.Logger
}

// NewRegistry creates an empty Registry publishing to hub.
func NewRegistry(hub *event.Hub, logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		hub:    hub,
		logger: logger,
	}
}

// Register adds or refreshes an agent. Idempotent on id: an existing record
// keeps its performance score, completion count, and average task time; name,
// capabilities, and status are overwritten and any current task is cleared.
func (r *Registry) Register(id, name string, capabilities []string) *Agent {
	if name == "" {
		name = id
	}
	if capabilities == nil {
		capabilities = []string{}
	}

	r.mu.Lock()
	a, exists := r.agents[id]
	if !exists {
		a = &Agent{
			ID:               id,
			PerformanceScore: 1.0,
		}
		r.agents[id] = a
		r.order = append(r.order, id)
	}
	a.Name = name
	a.Capabilities = capabilities
	a.Status = StatusOnline
	a.CurrentTask = ""
	a.LastSeen = time.Now().UTC()
	snapshot := *a
	r.mu.Unlock()

	r.logger.Info("agent registered",
		slog.String("id", id),
		slog.Any("capabilities", capabilities),
	)
	r.hub.Publish(event.Event{
		Type:    event.TypeAgentRegistered,
		AgentID: id,
		Payload: map[string]any{"agent": snapshot},
	})
	return &snapshot
}

// SetStatus updates an agent's status and last-seen time. currentTask
// replaces the agent's current task when non-nil; pass nil to leave it
// unchanged and a pointer to "" to clear it.
func (r *Registry) SetStatus(id string, status Status, currentTask *string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("agent %s not found", id)
	}
	a.Status = status
	a.LastSeen = time.Now().UTC()
	if currentTask != nil {
		a.CurrentTask = *currentTask
	}
	snapshot := *a
	r.mu.Unlock()

	r.hub.Publish(event.Event{
		Type:    event.TypeAgentStatusUpdated,
		AgentID: id,
		Payload: map[string]any{
			"status":      string(status),
			"currentTask": snapshot.CurrentTask,
		},
	})
	return nil
}

// Disconnect marks an agent offline after its channel closed. The agent's
// current task binding is left intact so the coordinator state stays
// truthful about the orphaned assignment.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	a.Status = StatusOffline
	a.LastSeen = time.Now().UTC()
	snapshot := *a
	r.mu.Unlock()

	r.logger.Info("agent disconnected", slog.String("id", id))
	r.hub.Publish(event.Event{
		Type:    event.TypeAgentStatusUpdated,
		AgentID: id,
		Payload: map[string]any{
			"status":      string(StatusOffline),
			"currentTask": snapshot.CurrentTask,
		},
	})
}

// RecordPerformance folds a task outcome into the agent's rolling score.
// Success blends an efficiency sample derived from the task duration into the
// score; failure applies a multiplicative penalty. The average task time is
// the mean of the previous average and the new sample, weighting recent work
// heavily.
func (r *Registry) RecordPerformance(id string, durationMS float64, success bool) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("agent %s not found", id)
	}

	if success {
		a.TasksCompleted++
		if a.TasksCompleted == 1 {
			a.AverageTaskTime = durationMS
		} else {
			a.AverageTaskTime = (a.AverageTaskTime + durationMS) / 2
		}
		efficiency := scoreCeiling
		if durationMS > 0 {
			efficiency = clamp(baselineTaskMS/durationMS, scoreFloor, scoreCeiling)
		}
		a.PerformanceScore = clamp(
			performanceDecay*a.PerformanceScore+(1-performanceDecay)*efficiency,
			scoreFloor, scoreCeiling,
		)
	} else {
		a.PerformanceScore = max(scoreFloor, failurePenalty*a.PerformanceScore)
	}
	snapshot := *a
	r.mu.Unlock()

	r.hub.Publish(event.Event{
		Type:    event.TypeAgentPerformanceUpdated,
		AgentID: id,
		Payload: map[string]any{
			"performanceScore": snapshot.PerformanceScore,
			"tasksCompleted":   snapshot.TasksCompleted,
			"averageTaskTime":  snapshot.AverageTaskTime,
		},
	})
	return nil
}

// Select returns the best-scoring online, idle agent for the required
// capabilities, or nil when none is available. Capability coverage is a
// ratio, not a containment test: an agent missing some capabilities can
// still win when nothing better is connected. Ties break by registration
// order, making selection deterministic for a fixed registry state.
func (r *Registry) Select(required []string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Agent
	bestScore := -1.0
	for _, id := range r.order {
		a := r.agents[id]
		if a.Status != StatusOnline || a.CurrentTask != "" {
			continue
		}
		if score := r.score(a, required); score > bestScore {
			best = a
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	snapshot := *best
	return &snapshot
}

// Score exposes the selection score for a single agent snapshot, used in
// assignment reasons.
func (r *Registry) Score(a *Agent, required []string) float64 {
	return r.score(a, required)
}

func (r *Registry) score(a *Agent, required []string) float64 {
	capability := 1.0
	if len(required) > 0 {
		matched := 0
		for _, req := range required {
			for _, c := range a.Capabilities {
				if c == req {
					matched++
					break
				}
			}
		}
		capability = float64(matched) / float64(len(required))
	}

	workload := 0.5
	if a.Status == StatusOnline {
		workload = 1.0
	}

	return weightCapability*capability +
		weightPerformance*a.PerformanceScore +
		weightWorkload*workload
}

// Get returns a snapshot of the agent with the given id.
func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	snapshot := *a
	return &snapshot, true
}

// List returns snapshots of all agents in registration order.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, id := range r.order {
		snapshot := *r.agents[id]
		out = append(out, &snapshot)
	}
	return out
}

// ActiveCount returns the number of agents whose status is not offline.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.Status != StatusOffline {
			n++
		}
	}
	return n
}

// Sweep marks every non-offline agent whose last-seen time is older than
// staleAfter as offline, emitting a status event for each.
func (r *Registry) Sweep(staleAfter time.Duration) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	r.mu.Lock()
	var stale []string
	for _, id := range r.order {
		a := r.agents[id]
		if a.Status != StatusOffline && a.LastSeen.Before(cutoff) {
			a.Status = StatusOffline
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.logger.Warn("agent marked offline by liveness sweep", slog.String("id", id))
		r.hub.Publish(event.Event{
			Type:    event.TypeAgentStatusUpdated,
			AgentID: id,
			Payload: map[string]any{"status": string(StatusOffline), "reason": "liveness sweep"},
		})
	}
}

// Run executes the liveness sweep every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(StaleThreshold)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
