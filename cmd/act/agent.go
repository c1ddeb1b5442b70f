package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// wsURL converts the --server base URL into the channel endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

// cmdSubmit creates a task over the coordination channel and waits for the
// task_created reply.
func (c *Client) cmdSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	caps := fs.String("caps", "", "comma-separated required capabilities")
	priority := fs.String("priority", "medium", "task priority")
	deps := fs.String("deps", "", "comma-separated dependency task ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: act submit [flags] <description>")
	}
	description := strings.Join(fs.Args(), " ")

	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()

	msg := map[string]any{
		"type":        "create_task",
		"description": description,
		"priority":    *priority,
	}
	if *caps != "" {
		msg["requiredCapabilities"] = strings.Split(*caps, ",")
	}
	if *deps != "" {
		msg["dependencies"] = strings.Split(*deps, ",")
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send create_task: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var in map[string]any
		if err := conn.ReadJSON(&in); err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		switch in["type"] {
		case "task_created":
			task, _ := in["task"].(map[string]any)
			fmt.Printf("task created: %v\n", task["id"])
			return nil
		case "task_error":
			return fmt.Errorf("task rejected: %v", in["message"])
		}
	}
	return fmt.Errorf("timed out waiting for task_created")
}

// cmdAgent runs a demo worker agent: it registers with the given
// capabilities, accepts assignments addressed to it, and works each task by
// stepping progress to completion.
func (c *Client) cmdAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	caps := fs.String("caps", "general", "comma-separated capabilities")
	name := fs.String("name", "", "display name (defaults to id)")
	stepDelay := fs.Duration("step", 1500*time.Millisecond, "delay between progress steps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: act agent [flags] <id>")
	}
	agentID := fs.Arg(0)

	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type":         "register_agent",
		"agentId":      agentID,
		"name":         *name,
		"capabilities": strings.Split(*caps, ","),
		"demo":         true,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("agent %s connecting with capabilities %s\n", agentID, *caps)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\nagent %s shutting down\n", agentID)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	completed := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if completed > 0 {
				fmt.Printf("disconnected after %d tasks\n", completed)
			}
			return nil
		}

		var in struct {
			Type    string `json:"type"`
			AgentID string `json:"agentId"`
			Payload struct {
				Task struct {
					ID          string `json:"id"`
					Description string `json:"description"`
				} `json:"task"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}

		switch in.Type {
		case "agent_registered":
			fmt.Printf("registered with hub\n")
		case "task_assigned":
			if in.AgentID != agentID {
				continue
			}
			taskID := in.Payload.Task.ID
			fmt.Printf("assigned: %s (%s)\n", in.Payload.Task.Description, taskID)
			for _, progress := range []int{25, 50, 75, 100} {
				time.Sleep(*stepDelay)
				if err := conn.WriteJSON(map[string]any{
					"type":     "update_task_progress",
					"taskId":   taskID,
					"progress": progress,
					"agentId":  agentID,
				}); err != nil {
					return fmt.Errorf("send progress: %w", err)
				}
				fmt.Printf("  progress: %d%%\n", progress)
			}
			completed++
			fmt.Printf("completed task %s (total %d)\n", taskID, completed)
		}
	}
}
