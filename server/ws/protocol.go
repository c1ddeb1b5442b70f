package ws

import (
	"encoding/json"
	"time"
)

// Inbound message types on the bidirectional channel.
const (
	msgRegisterAgent      = "register_agent"
	msgCreateTask         = "create_task"
	msgTaskProgress       = "task_progress"
	msgUpdateTaskProgress = "update_task_progress"
	msgAgentStatus        = "agent_status"
	msgAgentMessage       = "agent_message"
	msgGetProjectStatus   = "get_project_status"
	msgGetAgentRegistry   = "get_agent_registry"
	msgGetTasks           = "get_tasks"
)

// envelope is the minimal decode of any inbound message; the raw bytes are
// re-decoded into the type-specific struct. Unknown fields are ignored.
type envelope struct {
	Type string `json:"type"`
}

type registerAgentMsg struct {
	AgentID      string   `json:"agentId"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Demo         bool     `json:"demo"`
}

type createTaskMsg struct {
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"requiredCapabilities"`
	Priority             string   `json:"priority"`
	Dependencies         []string `json:"dependencies"`
	EstimatedDuration    float64  `json:"estimatedDuration"`
}

type taskProgressMsg struct {
	TaskID   string `json:"taskId"`
	Progress *int   `json:"progress"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type agentStatusMsg struct {
	AgentID     string  `json:"agentId"`
	Status      string  `json:"status"`
	CurrentTask *string `json:"currentTask"`
}

type agentMessageMsg struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// reply builds a direct response with the given type and fields, stamped
// with an ISO-8601 timestamp.
func reply(msgType string, fields map[string]any) []byte {
	out := map[string]any{"type": msgType, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range fields {
		out[k] = v
	}
	data, _ := json.Marshal(out)
	return data
}

// Error reply types, scoped to the failing operation.
const (
	errRegistration = "registration_error"
	errTask         = "task_error"
	errGeneric      = "error"
)

func errorReply(errType, message string) []byte {
	return reply(errType, map[string]any{"success": false, "message": message})
}
