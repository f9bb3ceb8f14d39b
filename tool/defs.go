package tool

import "github.com/GoCodeAlone/warden/provider"

func obj(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// Defs returns the tool schema handed to the model. resolve_decision is
// deliberately absent: it is dispatchable only from the owner surface.
func (r *Registry) Defs() []provider.ToolDef {
	return []provider.ToolDef{
		{
			Name:        GetWorldStatus,
			Description: "Get the global operating status, budget state, and task/decision counts.",
			Parameters:  obj(map[string]any{}),
		},
		{
			Name:        ListTasks,
			Description: "List tasks, optionally filtered by status. Use team_id 'all' to see every team's tasks.",
			Parameters: obj(map[string]any{
				"status":  str("Filter: pending, in_progress, completed, cancelled, or blocked"),
				"team_id": str("Team to list, or 'all' (default: your own team)"),
			}),
		},
		{
			Name:        ListDecisions,
			Description: "List decision requests, optionally filtered by status.",
			Parameters: obj(map[string]any{
				"status":  str("Filter: pending, approved, rejected, or deferred"),
				"team_id": str("Team to list, or 'all' (default: your own team)"),
			}),
		},
		{
			Name:        GetTeamInfo,
			Description: "Get a team's configuration and automation control state.",
			Parameters: obj(map[string]any{
				"team_id": str("Team to inspect (default: your own team)"),
			}),
		},
		{
			Name:        RecentActivity,
			Description: "Read recent activity log entries, newest first.",
			Parameters: obj(map[string]any{
				"limit":   integer("Maximum entries to return (default 20)"),
				"team_id": str("Team to read, or 'all' (default: your own team)"),
			}),
		},
		{
			Name:        CreateTask,
			Description: "Create a new task for your team.",
			Parameters: obj(map[string]any{
				"title":       str("Task title"),
				"description": str("What the task involves"),
				"priority":    str("low, medium, high, or critical (default medium)"),
			}, "title"),
		},
		{
			Name:        UpdateTaskStatus,
			Description: "Move a task to a new status. Transitions are one-way except blocked <-> in_progress.",
			Parameters: obj(map[string]any{
				"task_id": str("Task to update"),
				"status":  str("pending, in_progress, completed, cancelled, or blocked"),
				"result":  str("Outcome summary, usually set when completing"),
			}, "task_id", "status"),
		},
		{
			Name:        ReportProgress,
			Description: "Record progress (0-100) on an in-progress task.",
			Parameters: obj(map[string]any{
				"task_id":  str("Task to update"),
				"progress": integer("Completion percentage, 0-100"),
				"note":     str("Optional progress note for the activity log"),
			}, "task_id", "progress"),
		},
		{
			Name:        CreateDecision,
			Description: "Ask the owner to decide something you cannot. The owner resolves it later; do not wait for it.",
			Parameters: obj(map[string]any{
				"title":       str("What needs deciding"),
				"description": str("Context the owner needs"),
				"priority":    str("low, medium, high, or critical"),
				"options":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Choices to pick from"},
			}, "title"),
		},
		{
			Name:        SendMessage,
			Description: "Send a message to another team, or broadcast to all teams when 'to' is omitted.",
			Parameters: obj(map[string]any{
				"to":      str("Recipient team ID; omit to broadcast"),
				"subject": str("Short subject line"),
				"content": str("Message body"),
			}, "content"),
		},
		{
			Name:        DeleteTask,
			Description: "Delete a task that is no longer needed. Completed tasks cannot be deleted.",
			Parameters: obj(map[string]any{
				"task_id": str("Task to delete"),
			}, "task_id"),
		},
		{
			Name:        SignalCompletion,
			Description: "Signal that your assignment is finished. Call this exactly once, as your last action.",
			Parameters: obj(map[string]any{
				"summary": str("What was accomplished"),
			}),
		},
	}
}
