// Command act is the ACT CLI client. It inspects the hub over the REST API,
// tails the observer event stream, and can run a demo worker agent over the
// coordination channel.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/paradiselabs-ai/ACT/internal/version"
)

const defaultServer = "http://localhost:8080"

func main() {
	serverURL := flag.String("server", defaultServer, "ACT server URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "agents":
		err = cli.cmdAgents(rest)
	case "tasks":
		err = cli.cmdTasks(rest)
	case "conflicts":
		err = cli.cmdConflicts(rest)
	case "watch":
		err = cli.cmdWatch(rest)
	case "submit":
		err = cli.cmdSubmit(rest)
	case "agent":
		err = cli.cmdAgent(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `act — ACT coordination hub CLI

Usage:
  act [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:8080)

Commands:
  version                      print version
  status                       show project status
  agents                       list registered agents
  tasks                        list tasks
  conflicts                    run conflict detection
  watch                        tail the observer event stream
  submit <description>         create a task (--caps a,b --priority high --deps id1,id2)
  agent <id>                   run a demo worker agent (--caps a,b --name Name)
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Printf("act %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]any
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:     %v\n", result["status"])
	fmt.Printf("progress:   %v%%\n", result["progress"])
	fmt.Printf("agents:     %v active\n", result["activeAgents"])
	fmt.Printf("tasks:      %v total, %v completed\n", result["totalTasks"], result["completedTasks"])
	return nil
}

// --- agents ---

func (c *Client) cmdAgents(_ []string) error {
	var agents []map[string]any
	if err := c.get("/api/agents", &agents); err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("no agents")
		return nil
	}
	fmt.Printf("%-20s %-20s %-10s %-8s %s\n", "ID", "NAME", "STATUS", "SCORE", "CAPABILITIES")
	fmt.Println(strings.Repeat("-", 80))
	for _, a := range agents {
		caps := ""
		if list, ok := a["capabilities"].([]any); ok {
			parts := make([]string, len(list))
			for i, p := range list {
				parts[i] = fmt.Sprint(p)
			}
			caps = strings.Join(parts, ",")
		}
		fmt.Printf("%-20s %-20s %-10s %-8.2f %s\n",
			strVal(a["id"]), strVal(a["name"]), strVal(a["status"]),
			floatVal(a["performanceScore"]), caps)
	}
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(_ []string) error {
	var tasks []map[string]any
	if err := c.get("/api/tasks", &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-12s %-9s %-20s %s\n", "ID", "STATUS", "PROGRESS", "AGENT", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 100))
	for _, t := range tasks {
		fmt.Printf("%-36s %-12s %7.0f%%  %-20s %s\n",
			strVal(t["id"]), strVal(t["status"]), floatVal(t["progress"]),
			strVal(t["assignedAgent"]), strVal(t["description"]))
	}
	return nil
}

// --- conflicts ---

func (c *Client) cmdConflicts(_ []string) error {
	var conflicts []map[string]any
	if err := c.get("/api/conflicts", &conflicts); err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	for _, cf := range conflicts {
		fmt.Printf("[%s] %s\n", strVal(cf["severity"]), strVal(cf["type"]))
		fmt.Printf("    %s\n", strVal(cf["resolution"]))
	}
	return nil
}

// --- watch ---

// cmdWatch tails the SSE observer stream and prints each event.
func (c *Client) cmdWatch(_ []string) error {
	resp, err := (&http.Client{}).Get(c.BaseURL + "/events")
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		fmt.Println(strings.TrimPrefix(line, "data: "))
	}
	return scanner.Err()
}

func strVal(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func floatVal(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
