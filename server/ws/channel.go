// Package ws implements the bidirectional WebSocket channel used by agents
// and task producers. Each connection gets a read pump that dispatches
// protocol messages and a write pump with a bounded send buffer; broadcast
// events from the hub are fanned out across all open channels.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paradiselabs-ai/ACT/agent"
	"github.com/paradiselabs-ai/ACT/comms"
	"github.com/paradiselabs-ai/ACT/event"
	"github.com/paradiselabs-ai/ACT/task"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
)

// Manager upgrades channel connections and dispatches their messages into
// the registry and coordinator.
type Manager struct {
	registry *agent.Registry
	coord    *task.Coordinator
	hub      *event.Hub
	table    *comms.Table
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewManager creates a Manager wired to the given components.
func NewManager(registry *agent.Registry, coord *task.Coordinator, hub *event.Hub, table *comms.Table, logger *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		coord:    coord,
		hub:      hub,
		table:    table,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run forwards every hub event to all open channels until ctx is done.
// Agents filter broadcasts by agentId, the way the demo clients do.
func (m *Manager) Run(ctx context.Context) {
	events, unsubscribe := m.hub.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				m.logger.Error("marshal broadcast", slog.Any("err", err))
				continue
			}
			m.table.Broadcast(data)
		}
	}
}

// ServeWS handles a channel connection request.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade", slog.Any("err", err))
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		mgr:  m,
	}
	m.table.Attach(c.id, c.enqueue)
	m.logger.Info("channel opened", slog.String("conn", c.id))

	go c.writePump()
	c.readPump()
}

// conn is a single open channel.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	done chan struct{}
	mgr  *Manager
}

// enqueue buffers data for the write pump, dropping when the client cannot
// keep up.
func (c *conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.mgr.logger.Warn("channel send buffer full, dropping message",
			slog.String("conn", c.id))
	}
}

func (c *conn) readPump() {
	defer c.close()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.mgr.logger.Warn("channel read", slog.String("conn", c.id), slog.Any("err", err))
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the channel down: the table entry is removed and every agent
// bound to it goes offline. In-flight assignments are left intact: the tasks
// keep their assigned or in_progress state and are not reassigned.
func (c *conn) close() {
	c.sock.Close()
	for _, agentID := range c.mgr.table.Detach(c.id) {
		c.mgr.registry.Disconnect(agentID)
	}
	close(c.done)
	c.mgr.logger.Info("channel closed", slog.String("conn", c.id))
}

// dispatch decodes one inbound message and routes it by type. Handlers run
// synchronously so a channel's messages apply in the order they arrived.
func (c *conn) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.enqueue(errorReply(errGeneric, "malformed message: "+err.Error()))
		return
	}

	switch env.Type {
	case msgRegisterAgent:
		c.handleRegister(data)
	case msgCreateTask:
		c.handleCreateTask(data)
	case msgTaskProgress, msgUpdateTaskProgress:
		c.handleTaskProgress(data)
	case msgAgentStatus:
		c.handleAgentStatus(data)
	case msgAgentMessage:
		c.handleAgentMessage(data)
	case msgGetProjectStatus:
		c.handleGetProjectStatus()
	case msgGetAgentRegistry:
		c.handleGetAgentRegistry()
	case msgGetTasks:
		c.handleGetTasks()
	default:
		c.enqueue(errorReply(errGeneric, "unknown message type: "+env.Type))
	}
}

func (c *conn) handleRegister(data []byte) {
	var msg registerAgentMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorReply(errRegistration, "malformed register_agent: "+err.Error()))
		return
	}
	if msg.AgentID == "" {
		c.enqueue(errorReply(errRegistration, "agentId is required"))
		return
	}

	if msg.Demo {
		c.mgr.hub.Publish(event.Event{
			Type:    event.TypeDemoAgentConnecting,
			AgentID: msg.AgentID,
			Payload: map[string]any{"name": msg.Name},
		})
	}

	a := c.mgr.registry.Register(msg.AgentID, msg.Name, msg.Capabilities)
	if err := c.mgr.table.Bind(msg.AgentID, c.id); err != nil {
		c.mgr.logger.Error("bind agent channel", slog.String("agent", msg.AgentID), slog.Any("err", err))
	}

	c.enqueue(reply("agent_registered", map[string]any{
		"success": true,
		"agentId": a.ID,
	}))
	c.mgr.hub.Publish(event.Event{
		Type:    event.TypeAgentJoined,
		AgentID: a.ID,
		Payload: map[string]any{"agent": *a},
	})

	// A newly available agent may unblock queued work.
	c.mgr.coord.ProcessPending()
}

func (c *conn) handleCreateTask(data []byte) {
	var msg createTaskMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorReply(errTask, "malformed create_task: "+err.Error()))
		return
	}

	t, err := c.mgr.coord.Create(task.CreateRequest{
		Description:          msg.Description,
		RequiredCapabilities: msg.RequiredCapabilities,
		Priority:             msg.Priority,
		Dependencies:         msg.Dependencies,
		EstimatedDuration:    msg.EstimatedDuration,
	})
	if err != nil {
		c.enqueue(errorReply(errTask, err.Error()))
		return
	}

	c.enqueue(reply("task_created", map[string]any{
		"success": true,
		"task":    *t,
	}))

	asg, err := c.mgr.coord.AssignOptimal(t.ID)
	if err != nil {
		c.mgr.logger.Warn("assign on create", slog.String("task", t.ID), slog.Any("err", err))
		return
	}
	if asg == nil {
		if unmet := c.mgr.coord.UnmetDependencies(t.ID); len(unmet) > 0 {
			c.mgr.hub.Publish(event.Event{
				Type:   event.TypeTaskPending,
				TaskID: t.ID,
				Payload: map[string]any{
					"task":   *t,
					"reason": "waiting on dependencies",
					"unmet":  unmet,
				},
			})
		}
	}
}

func (c *conn) handleTaskProgress(data []byte) {
	var msg taskProgressMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorReply(errTask, "malformed task progress: "+err.Error()))
		return
	}
	if msg.TaskID == "" {
		c.enqueue(errorReply(errTask, "taskId is required"))
		return
	}

	t, err := c.mgr.coord.UpdateProgress(msg.TaskID, msg.Progress, msg.Status, msg.Message)
	if err != nil {
		c.mgr.logger.Warn("task progress rejected",
			slog.String("task", msg.TaskID), slog.Any("err", err))
		c.enqueue(errorReply(errTask, err.Error()))
		return
	}

	c.mgr.hub.Publish(event.Event{
		Type:    event.TypeTaskProgress,
		TaskID:  t.ID,
		AgentID: t.AssignedAgent,
		Payload: map[string]any{
			"progress": t.Progress,
			"status":   string(t.Status),
		},
	})
}

func (c *conn) handleAgentStatus(data []byte) {
	var msg agentStatusMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorReply(errGeneric, "malformed agent_status: "+err.Error()))
		return
	}

	status := agent.Status(msg.Status)
	switch status {
	case agent.StatusOnline, agent.StatusBusy, agent.StatusOffline:
	default:
		c.enqueue(errorReply(errGeneric, "unknown status: "+msg.Status))
		return
	}

	if err := c.mgr.registry.SetStatus(msg.AgentID, status, msg.CurrentTask); err != nil {
		c.mgr.logger.Warn("status update rejected",
			slog.String("agent", msg.AgentID), slog.Any("err", err))
		c.enqueue(errorReply(errGeneric, err.Error()))
		return
	}

	payload := map[string]any{"status": msg.Status}
	if msg.CurrentTask != nil {
		payload["currentTask"] = *msg.CurrentTask
	}
	c.mgr.hub.Publish(event.Event{
		Type:    event.TypeAgentStatusUpdate,
		AgentID: msg.AgentID,
		Payload: payload,
	})
}

// handleAgentMessage forwards agent chatter to every other channel. The hub
// relays but does not persist these.
func (c *conn) handleAgentMessage(data []byte) {
	var msg agentMessageMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.enqueue(errorReply(errGeneric, "malformed agent_message: "+err.Error()))
		return
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	out, err := json.Marshal(map[string]any{
		"type":      msgAgentMessage,
		"sender":    msg.Sender,
		"message":   msg.Message,
		"timestamp": msg.Timestamp,
	})
	if err != nil {
		c.mgr.logger.Error("marshal agent_message", slog.Any("err", err))
		return
	}
	c.mgr.table.Relay(c.id, out)
}

func (c *conn) handleGetProjectStatus() {
	status := c.mgr.coord.Project(c.mgr.registry.ActiveCount())
	c.enqueue(reply("project_status_update", map[string]any{
		"status":         status.Status,
		"progress":       status.Progress,
		"activeAgents":   status.ActiveAgents,
		"totalTasks":     status.TotalTasks,
		"completedTasks": status.CompletedTasks,
	}))
}

// handleGetAgentRegistry replays the known agents to a late-joining channel,
// one agent_registered message per agent.
func (c *conn) handleGetAgentRegistry() {
	for _, a := range c.mgr.registry.List() {
		c.enqueue(reply("agent_registered", map[string]any{
			"agentId": a.ID,
			"agent":   *a,
		}))
	}
}

// handleGetTasks replays the known tasks, one task_assigned message per
// task.
func (c *conn) handleGetTasks() {
	for _, t := range c.mgr.coord.List() {
		c.enqueue(reply("task_assigned", map[string]any{
			"agentId": t.AssignedAgent,
			"task":    *t,
		}))
	}
}
