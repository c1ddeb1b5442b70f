// Package api exposes read-only snapshots of coordination state, a task
// creation endpoint, and the on-demand conflict check.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/conflict"
	"github.com/paradiselabs-ai/ACT/event"
	"github.com/paradiselabs-ai/ACT/task"
)

// Handlers bundles all REST handler dependencies.
type Handlers struct {
	Registry *agent.Registry
	Coord    *task.Coordinator
	Hub      *event.Hub
	Resolver *conflict.Resolver
	Logger   *slog.Logger
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/assignments", h.listAssignments)
	mux.HandleFunc("GET /api/conflicts", h.detectConflicts)
	mux.HandleFunc("GET /api/events", h.listEvents)
	mux.HandleFunc("GET /api/status", h.projectStatus)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.Registry.List()
	if agents == nil {
		agents = []*agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := h.Coord.List()
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// createTask is the request-endpoint alternative to the channel's
// create_task message: the task is stored and an immediate assignment is
// attempted.
func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description          string   `json:"description"`
		RequiredCapabilities []string `json:"requiredCapabilities"`
		Priority             string   `json:"priority"`
		Dependencies         []string `json:"dependencies"`
		EstimatedDuration    float64  `json:"estimatedDuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	t, err := h.Coord.Create(task.CreateRequest{
		Description:          req.Description,
		RequiredCapabilities: req.RequiredCapabilities,
		Priority:             req.Priority,
		Dependencies:         req.Dependencies,
		EstimatedDuration:    req.EstimatedDuration,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Coord.AssignOptimal(t.ID); err != nil {
		h.Logger.Warn("assign on create", slog.String("task", t.ID), slog.Any("err", err))
	}
	if fresh, ok := h.Coord.Get(t.ID); ok {
		t = fresh
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) listAssignments(w http.ResponseWriter, _ *http.Request) {
	asgs := h.Coord.Assignments()
	if asgs == nil {
		asgs = []*task.Assignment{}
	}
	writeJSON(w, http.StatusOK, asgs)
}

// detectConflicts runs the detector over current state. A non-empty result
// is broadcast as conflicts_detected and handed to the resolver, which
// emits the resolution event pair in the background.
func (h *Handlers) detectConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := conflict.Detect(h.Registry.List(), h.Coord.List())
	if conflicts == nil {
		conflicts = []conflict.Conflict{}
	}

	if len(conflicts) > 0 {
		h.Logger.Warn("conflicts detected", slog.Int("count", len(conflicts)))
		h.Hub.Publish(event.Event{
			Type:    event.TypeConflictsDetected,
			Payload: map[string]any{"conflicts": conflicts},
		})
		go h.Resolver.Resolve(context.WithoutCancel(r.Context()), conflicts)
	}

	writeJSON(w, http.StatusOK, conflicts)
}

// listEvents replays the event ring for observer bootstrap. Supports
// ?limit=n and ?type=task_assigned.
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	var events []event.Event
	if t := r.URL.Query().Get("type"); t != "" {
		events = h.Hub.ByType(event.Type(t), limit)
	} else {
		events = h.Hub.Recent(limit)
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) projectStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.Coord.Project(h.Registry.ActiveCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status.Status,
		"progress":       status.Progress,
		"activeAgents":   status.ActiveAgents,
		"totalTasks":     status.TotalTasks,
		"completedTasks": status.CompletedTasks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}
