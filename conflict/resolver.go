package conflict

import (
	"context"
	"log/slog"
	"time"

	"github.com/paradiselabs-ai/ACT/event"
)

// Resolution delays by conflict type. Deadlocks get the longer window since
// breaking one involves humans.
var resolutionDelay = map[Type]time.Duration{
	TypeResourceContention: 2 * time.Second,
	TypeDependencyDeadlock: 3 * time.Second,
	TypeCapabilityMismatch: 2 * time.Second,
}

// Resolver announces resolution intent for detected conflicts. It emits the
// conflict_resolution_started / conflict_resolved event pair around a
// bounded delay; the remediation itself (redistributing tasks, breaking
// cycles) is not performed — the events exist so observers and future
// remediation layers share one protocol.
type Resolver struct {
	hub    *event.Hub
	logger *slog.Logger
}

// NewResolver creates a Resolver publishing to hub.
func NewResolver(hub *event.Hub, logger *slog.Logger) *Resolver {
	return &Resolver{hub: hub, logger: logger}
}

// Resolve walks the conflicts in order, emitting the event pair for each.
// It returns once all pairs have been emitted or ctx is canceled.
func (r *Resolver) Resolve(ctx context.Context, conflicts []Conflict) {
	for _, c := range conflicts {
		r.hub.Publish(event.Event{
			Type: event.TypeConflictResolutionStart,
			Payload: map[string]any{
				"conflictId": c.ID,
				"type":       string(c.Type),
				"remedy":     c.Resolution,
			},
		})

		delay := resolutionDelay[c.Type]
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		r.logger.Info("conflict resolution window elapsed",
			slog.String("conflict", c.ID),
			slog.String("type", string(c.Type)),
		)
		r.hub.Publish(event.Event{
			Type: event.TypeConflictResolved,
			Payload: map[string]any{
				"conflictId": c.ID,
				"type":       string(c.Type),
			},
		})
	}
}
