// Package server implements the ACT HTTP server: the WebSocket channel
// endpoint, the SSE observer stream, and the read-only REST API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/comms"
	"github.com/paradiselabs-ai/ACT/config"
	"github.com/paradiselabs-ai/ACT/conflict"
	"github.com/paradiselabs-ai/ACT/event"
	"github.com/paradiselabs-ai/ACT/internal/version"
	"github.com/paradiselabs-ai/ACT/server/api"
	"github.com/paradiselabs-ai/ACT/server/ws"
	"github.com/paradiselabs-ai/ACT/task"
)

// Server is the ACT coordination hub server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	registry *agent.Registry
	coord    *task.Coordinator
	hub      *event.Hub
	table    *comms.Table
	channels *ws.Manager

	cancel context.CancelFunc
}

// New assembles a Server and all hub components from the given config.
func New(cfg config.Config, logger *slog.Logger) *Server {
	hub := event.NewHub(logger)
	registry := agent.NewRegistry(hub, logger)
	coord := task.NewCoordinator(registry, hub, logger)
	table := comms.NewTable()

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   logger,
		registry: registry,
		coord:    coord,
		hub:      hub,
		table:    table,
		channels: ws.NewManager(registry, coord, hub, table, logger),
	}
	s.registerRoutes()
	return s
}

// Registry exposes the agent registry.
func (s *Server) Registry() *agent.Registry { return s.registry }

// Coordinator exposes the task coordinator.
func (s *Server) Coordinator() *task.Coordinator { return s.coord }

// Hub exposes the event hub.
func (s *Server) Hub() *event.Hub { return s.hub }

// Start launches the background loops and begins listening on the routes
// registered by New. It blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.channels.Run(ctx)
	go s.registry.Run(ctx)

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop cancels the background loops and gracefully shuts down the HTTP
// server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Registry: s.registry,
		Coord:    s.coord,
		Hub:      s.hub,
		Resolver: conflict.NewResolver(s.hub, s.logger),
		Logger:   s.logger,
	}
	h.RegisterRoutes(s.mux)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /events", s.handleSSE)
	s.mux.HandleFunc("GET /ws", s.channels.ServeWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   version.Version,
		"agents":    len(s.registry.List()),
		"tasks":     len(s.coord.List()),
	})
}

// handleSSE streams every subsequent hub event to the observer. Delivery is
// best-effort: the hub drops events for subscribers that fall behind, and a
// late joiner replays history through /api/events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	// Send initial connected event
	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("sse marshal", slog.Any("err", err))
				continue
			}
			// Each SSE "data:" line must not contain newlines
			for _, line := range strings.Split(string(data), "\n") {
				fmt.Fprintf(w, "data: %s\n", line) //nolint:errcheck
			}
			fmt.Fprintln(w) //nolint:errcheck
			flusher.Flush()
		}
	}
}
