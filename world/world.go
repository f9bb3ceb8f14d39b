// Package world holds the shared mutable model of teams, tasks, decisions,
// and activities, plus the controller that gates what may act on it.
package world

import "time"

// Status is the global operating mode of the world.
type Status string

const (
	StatusPaused     Status = "paused"
	StatusManual     Status = "manual"
	StatusSemiAuto   Status = "semi_auto"
	StatusAutonomous Status = "autonomous"
)

// AutomationLevel is a team's permission tier.
type AutomationLevel string

const (
	AutomationStopped    AutomationLevel = "stopped"
	AutomationManual     AutomationLevel = "manual"
	AutomationSupervised AutomationLevel = "supervised"
	AutomationAutonomous AutomationLevel = "autonomous"
)

// Team is an independent unit of orchestration.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Emoji        string `json:"emoji,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Active       bool   `json:"active"`
}

// TeamControl is the per-team automation state. Teams are never hard-deleted,
// only deactivated, so controls outlive the team's active flag.
type TeamControl struct {
	Level  AutomationLevel `json:"level"`
	Paused bool            `json:"paused"`
}

// TaskPriority orders tasks for teams and the briefing.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskBlocked    TaskStatus = "blocked"
)

// Task is a unit of work owned by a team.
type Task struct {
	ID             string       `json:"id"`
	TeamID         string       `json:"team_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Priority       TaskPriority `json:"priority"`
	Status         TaskStatus   `json:"status"`
	Progress       int          `json:"progress"` // 0-100, meaningful while in_progress
	AssignedAgents []string     `json:"assigned_agents,omitempty"`
	Result         string       `json:"result,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// DecisionStatus is the resolution state of a decision request.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
	DecisionDeferred DecisionStatus = "deferred"
)

// Decision is a request for human judgment raised by an agent.
// Agents create decisions; only the owner surface resolves them.
type Decision struct {
	ID          string         `json:"id"`
	TeamID      string         `json:"team_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Priority    TaskPriority   `json:"priority"`
	Status      DecisionStatus `json:"status"`
	Options     []string       `json:"options,omitempty"`
	RequestedBy string         `json:"requested_by"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
}

// Activity is one append-only log entry. Never mutated after creation.
type Activity struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Message   string    `json:"message"`
	Tag       string    `json:"tag,omitempty"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CreditProtection tracks spend against configured limits.
type CreditProtection struct {
	DailyLimit        float64 `json:"daily_limit"`
	MonthlyLimit      float64 `json:"monthly_limit"`
	CurrentDailySpend float64 `json:"current_daily_spend"`
	CurrentMonthly    float64 `json:"current_monthly_spend"`
	HardStopThreshold float64 `json:"hard_stop_threshold"` // fraction, 1.0 = 100%
}

// EmergencyStopState is the human-resettable kill switch. There is no
// automatic recovery; a human must clear it.
type EmergencyStopState struct {
	Triggered bool      `json:"triggered"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at,omitempty"`
}

// validTaskTransition reports whether a task may move from one status to
// another. Transitions are monotonic except blocked<->in_progress.
func validTaskTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskPending:
		return to == TaskInProgress || to == TaskCancelled || to == TaskBlocked
	case TaskInProgress:
		return to == TaskCompleted || to == TaskCancelled || to == TaskBlocked
	case TaskBlocked:
		return to == TaskInProgress || to == TaskCancelled
	case TaskCompleted, TaskCancelled:
		return false
	}
	return false
}

// ValidAutomationLevel reports whether s names a known automation level.
func ValidAutomationLevel(s AutomationLevel) bool {
	switch s {
	case AutomationStopped, AutomationManual, AutomationSupervised, AutomationAutonomous:
		return true
	}
	return false
}

// ValidTaskStatus reports whether s names a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled, TaskBlocked:
		return true
	}
	return false
}
