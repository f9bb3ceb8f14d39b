// Package tool is the fixed catalog of atomic operations the model can
// invoke, and the dispatcher that applies them to the world under the
// controller's gates.
package tool

// Kind partitions the catalog: observations read, actions mutate, control
// tools drive loop lifecycle.
type Kind int

const (
	KindObservation Kind = iota
	KindAction
	KindControl
)

// The complete tool catalog. The set is closed: dispatch switches over these
// names exhaustively and anything else is an unknown-tool result.
const (
	GetWorldStatus   = "get_world_status"
	ListTasks        = "list_tasks"
	ListDecisions    = "list_decisions"
	GetTeamInfo      = "get_team_info"
	RecentActivity   = "recent_activity"
	CreateTask       = "create_task"
	UpdateTaskStatus = "update_task_status"
	ReportProgress   = "report_progress"
	CreateDecision   = "create_decision"
	ResolveDecision  = "resolve_decision"
	SendMessage      = "send_message"
	DeleteTask       = "delete_task"
	SignalCompletion = "signal_completion"
)

// KindOf returns the category of a tool name. The second return is false for
// names outside the catalog.
func KindOf(name string) (Kind, bool) {
	switch name {
	case GetWorldStatus, ListTasks, ListDecisions, GetTeamInfo, RecentActivity:
		return KindObservation, true
	case CreateTask, UpdateTaskStatus, ReportProgress, CreateDecision,
		ResolveDecision, SendMessage, DeleteTask:
		return KindAction, true
	case SignalCompletion:
		return KindControl, true
	}
	return 0, false
}

// Result is the uniform contract every dispatch returns. Failures are values
// fed back to the model, never panics or errors crossing the loop boundary.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

func success(msg string, data any) Result {
	return Result{Success: true, Message: msg, Data: data}
}

// --- argument decoding helpers ---

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func strSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
