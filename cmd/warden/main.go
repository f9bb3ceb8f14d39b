// Command warden is the Warden CLI client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/warden/internal/version"
	"github.com/GoCodeAlone/warden/update"
)

const defaultServer = "http://localhost:9090"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "warden server URL")
		token     = flag.String("token", os.Getenv("WARDEN_TOKEN"), "JWT auth token")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
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
	case "teams":
		err = cli.cmdTeams(rest)
	case "tasks":
		err = cli.cmdTasks(rest)
	case "task":
		err = cli.cmdTask(rest)
	case "decisions":
		err = cli.cmdDecisions(rest)
	case "decision":
		err = cli.cmdDecision(rest)
	case "world":
		err = cli.cmdWorld(rest)
	case "loop":
		err = cli.cmdLoop(rest)
	case "broadcast":
		err = cli.cmdBroadcast(rest)
	case "upgrade":
		err = cmdUpgrade(rest)
	case "serve":
		fmt.Fprintln(os.Stderr, "use wardend to run the server")
		os.Exit(1)
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
	fmt.Fprint(os.Stderr, `warden - Warden CLI

Usage:
  warden [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9090)
  --token   <token>  JWT auth token (or $WARDEN_TOKEN)

Commands:
  version                      print version
  status                       show world status
  teams                        list teams
  tasks [team]                 list tasks
  task create <team> <title>   create a task
  decisions [team]             list decisions
  decision approve|reject <id> resolve a pending decision
  world pause|resume           pause or resume the world
  world stop [reason]          emergency stop
  world clear                  clear emergency stop
  loop start|stop|run <team>   control a team's agent loop
  broadcast <message>          broadcast to all teams
  upgrade                      update to the latest release
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Printf("warden %s\n", version.Full())
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

// post performs a POST with a JSON body and decodes the response into v.
func (c *Client) post(path string, body io.Reader, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

// put performs a PUT with a JSON body and decodes the response into v.
func (c *Client) put(path string, body io.Reader, v any) error {
	return c.do(http.MethodPut, path, body, v)
}

func (c *Client) do(method, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]any
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("world:   %s\n", strVal(result["world_status"]))
	fmt.Printf("version: %s\n", strVal(result["version"]))
	if emergency, ok := result["emergency_stop"].(map[string]any); ok {
		if fmt.Sprint(emergency["triggered"]) == "true" {
			fmt.Printf("EMERGENCY STOP: %s\n", strVal(emergency["reason"]))
		}
	}
	if credit, ok := result["credit"].(map[string]any); ok {
		fmt.Printf("spend:   $%v today / $%v limit\n",
			credit["current_daily_spend"], credit["daily_limit"])
	}
	if loops, ok := result["running_loops"].([]any); ok && len(loops) > 0 {
		names := make([]string, 0, len(loops))
		for _, l := range loops {
			names = append(names, strVal(l))
		}
		fmt.Printf("loops:   %s\n", strings.Join(names, ", "))
	}
	return nil
}

// --- teams ---

func (c *Client) cmdTeams(_ []string) error {
	var teams []map[string]any
	if err := c.get("/api/teams", &teams); err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Println("no teams")
		return nil
	}
	fmt.Printf("%-16s %-20s %-12s %-8s\n", "ID", "NAME", "AUTOMATION", "PAUSED")
	fmt.Println(strings.Repeat("-", 60))
	for _, t := range teams {
		level, paused := "", ""
		if ctl, ok := t["control"].(map[string]any); ok {
			level = strVal(ctl["level"])
			paused = fmt.Sprint(ctl["paused"])
		}
		fmt.Printf("%-16s %-20s %-12s %-8s\n",
			strVal(t["id"]), truncate(strVal(t["name"]), 19), level, paused)
	}
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(args []string) error {
	path := "/api/tasks"
	if len(args) > 0 {
		path += "?team_id=" + args[0]
	}
	var tasks []map[string]any
	if err := c.get(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-30s %-12s %-10s\n", "ID", "TITLE", "STATUS", "PRIORITY")
	fmt.Println(strings.Repeat("-", 92))
	for _, t := range tasks {
		fmt.Printf("%-36s %-30s %-12s %-10s\n",
			strVal(t["id"]),
			truncate(strVal(t["title"]), 29),
			strVal(t["status"]),
			strVal(t["priority"]),
		)
	}
	return nil
}

func (c *Client) cmdTask(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: warden task create <team> <title>")
		os.Exit(1)
	}
	switch args[0] {
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("usage: warden task create <team> <title>")
		}
		team := args[1]
		title := strings.Join(args[2:], " ")
		body := fmt.Sprintf(`{"team_id":%q,"title":%q,"priority":"medium"}`, team, title)
		var result map[string]any
		if err := c.post("/api/tasks", strings.NewReader(body), &result); err != nil {
			return err
		}
		fmt.Printf("created: %s\n", strVal(result["message"]))
	default:
		return fmt.Errorf("unknown task subcommand: %s", args[0])
	}
	return nil
}

// --- decisions ---

func (c *Client) cmdDecisions(args []string) error {
	path := "/api/decisions?status=pending"
	if len(args) > 0 {
		path = "/api/decisions?team_id=" + args[0]
	}
	var decisions []map[string]any
	if err := c.get(path, &decisions); err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Println("no decisions")
		return nil
	}
	fmt.Printf("%-36s %-30s %-10s %-16s\n", "ID", "TITLE", "STATUS", "TEAM")
	fmt.Println(strings.Repeat("-", 96))
	for _, d := range decisions {
		fmt.Printf("%-36s %-30s %-10s %-16s\n",
			strVal(d["id"]),
			truncate(strVal(d["title"]), 29),
			strVal(d["status"]),
			strVal(d["team_id"]),
		)
	}
	return nil
}

func (c *Client) cmdDecision(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: warden decision <approve|reject> <id>")
		os.Exit(1)
	}
	verb, id := args[0], args[1]
	var status string
	switch verb {
	case "approve":
		status = "approved"
	case "reject":
		status = "rejected"
	default:
		return fmt.Errorf("unknown decision subcommand: %s", verb)
	}
	body := fmt.Sprintf(`{"status":%q,"resolved_by":"cli"}`, status)
	var result map[string]any
	if err := c.put("/api/decisions/"+id, strings.NewReader(body), &result); err != nil {
		return err
	}
	fmt.Printf("decision %s %s\n", id, status)
	return nil
}

// --- world controls ---

func (c *Client) cmdWorld(args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: warden world <pause|resume|stop|clear>")
		os.Exit(1)
	}
	switch args[0] {
	case "pause":
		reason := strings.Join(args[1:], " ")
		body := fmt.Sprintf(`{"reason":%q}`, reason)
		if err := c.post("/api/world/pause", strings.NewReader(body), nil); err != nil {
			return err
		}
		fmt.Println("world paused")
	case "resume":
		if err := c.post("/api/world/resume", nil, nil); err != nil {
			return err
		}
		fmt.Println("world resumed")
	case "stop":
		reason := strings.Join(args[1:], " ")
		body := fmt.Sprintf(`{"reason":%q}`, reason)
		if err := c.post("/api/world/emergency-stop", strings.NewReader(body), nil); err != nil {
			return err
		}
		fmt.Println("EMERGENCY STOP triggered")
	case "clear":
		if err := c.post("/api/world/clear-emergency", nil, nil); err != nil {
			return err
		}
		fmt.Println("emergency stop cleared")
	default:
		return fmt.Errorf("unknown world subcommand: %s", args[0])
	}
	return nil
}

// --- loops ---

func (c *Client) cmdLoop(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: warden loop <start|stop|run> <team> [instructions]")
		os.Exit(1)
	}
	action, team := args[0], args[1]
	instructions := strings.Join(args[2:], " ")
	apiAction := action
	if action == "run" {
		apiAction = "execute"
	}
	body := fmt.Sprintf(`{"team_id":%q,"action":%q,"instructions":%q}`, team, apiAction, instructions)
	var result map[string]any
	if err := c.post("/api/orchestrate", strings.NewReader(body), &result); err != nil {
		return err
	}
	switch action {
	case "run":
		fmt.Printf("loop finished: %s (%v iterations)\n", strVal(result["state"]), result["iterations"])
		if reason := strVal(result["reason"]); reason != "" {
			fmt.Printf("reason: %s\n", reason)
		}
	default:
		fmt.Printf("loop %s: %s\n", team, strVal(result["state"]))
	}
	return nil
}

// --- broadcast ---

func (c *Client) cmdBroadcast(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: warden broadcast <message>")
	}
	content := strings.Join(args, " ")
	body := fmt.Sprintf(`{"subject":"owner message","content":%q}`, content)
	if err := c.post("/api/broadcast", strings.NewReader(body), nil); err != nil {
		return err
	}
	fmt.Println("broadcast sent")
	return nil
}

// --- upgrade ---

func cmdUpgrade(_ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	up := update.New(version.Version)
	rel, err := up.Check(ctx)
	if err != nil {
		return err
	}
	if rel == nil {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Printf("updating %s -> %s\n", version.Version, rel.Version)
	if err := up.Apply(ctx, rel); err != nil {
		return err
	}
	fmt.Println("update complete")
	return nil
}

// --- helpers ---

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
