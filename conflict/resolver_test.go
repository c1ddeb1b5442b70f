package conflict

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paradiselabs-ai/ACT/event"
)

func TestResolver_EmitsEventPair(t *testing.T) {
	orig := resolutionDelay[TypeCapabilityMismatch]
	resolutionDelay[TypeCapabilityMismatch] = 10 * time.Millisecond
	t.Cleanup(func() { resolutionDelay[TypeCapabilityMismatch] = orig })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := event.NewHub(logger)
	r := NewResolver(hub, logger)

	c := Conflict{
		ID:         "c1",
		Type:       TypeCapabilityMismatch,
		Severity:   SeverityLow,
		Resolution: "reassign when possible",
	}
	r.Resolve(context.Background(), []Conflict{c})

	events := hub.Recent(0)
	if len(events) != 2 {
		t.Fatalf("events = %d, want start and resolved", len(events))
	}
	if events[0].Type != event.TypeConflictResolutionStart {
		t.Errorf("first event = %q, want conflict_resolution_started", events[0].Type)
	}
	if events[1].Type != event.TypeConflictResolved {
		t.Errorf("second event = %q, want conflict_resolved", events[1].Type)
	}
	if events[0].Payload["conflictId"] != "c1" {
		t.Errorf("payload conflictId = %v, want c1", events[0].Payload["conflictId"])
	}
	if events[0].Payload["remedy"] != "reassign when possible" {
		t.Errorf("payload remedy = %v", events[0].Payload["remedy"])
	}
}

func TestResolver_CancelStopsBeforeResolved(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := event.NewHub(logger)
	r := NewResolver(hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Resolve(ctx, []Conflict{{ID: "c1", Type: TypeDependencyDeadlock}})

	events := hub.Recent(0)
	if len(events) != 1 {
		t.Fatalf("events = %d, want only the start event", len(events))
	}
	if events[0].Type != event.TypeConflictResolutionStart {
		t.Errorf("event = %q, want conflict_resolution_started", events[0].Type)
	}
}
