package tool

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/warden/comms"
	"github.com/GoCodeAlone/warden/provider"
	"github.com/GoCodeAlone/warden/world"
)

// Registry dispatches the closed tool catalog against the world. Tools are
// atomic: each performs one conceptual read or mutation, and decision-making
// stays with the caller (the model).
type Registry struct {
	state *world.State
	ctrl  *world.Controller
	bus   comms.Bus
}

// NewRegistry creates a dispatcher over the given world.
func NewRegistry(state *world.State, ctrl *world.Controller, bus comms.Bus) *Registry {
	return &Registry{state: state, ctrl: ctrl, bus: bus}
}

// Dispatch executes one tool call on behalf of a team. Action tools are
// checked against the controller's gates before mutating; a denied gate
// yields a failed Result and no mutation. Unknown names yield a failed
// Result, never a panic.
func (r *Registry) Dispatch(ctx context.Context, call provider.ToolCall, teamID string, actor world.Actor) Result {
	kind, known := KindOf(call.Name)
	if !known {
		return failure(fmt.Sprintf("unknown tool %q", call.Name))
	}

	if kind == KindAction {
		if gate := r.ctrl.Check(teamID, actor); !gate.Allowed {
			return failure(gate.Reason)
		}
	}

	input := call.Input
	if input == nil {
		input = map[string]any{}
	}

	switch call.Name {
	// --- observation ---
	case GetWorldStatus:
		return r.getWorldStatus()
	case ListTasks:
		return r.listTasks(teamID, input)
	case ListDecisions:
		return r.listDecisions(teamID, input)
	case GetTeamInfo:
		return r.getTeamInfo(teamID, input)
	case RecentActivity:
		return r.recentActivity(teamID, input)

	// --- action ---
	case CreateTask:
		return r.createTask(teamID, input)
	case UpdateTaskStatus:
		return r.updateTaskStatus(teamID, input)
	case ReportProgress:
		return r.reportProgress(teamID, input)
	case CreateDecision:
		return r.createDecision(teamID, input)
	case ResolveDecision:
		return r.resolveDecision(teamID, actor, input)
	case SendMessage:
		return r.sendMessage(ctx, teamID, input)
	case DeleteTask:
		return r.deleteTask(teamID, input)

	// --- control ---
	case SignalCompletion:
		summary := strArg(input, "summary")
		return success("completion signalled", map[string]any{"summary": summary})
	}

	// Unreachable: KindOf already rejected unknown names.
	return failure(fmt.Sprintf("unknown tool %q", call.Name))
}

// --- observation tools: pure reads over one snapshot, no mutation ---

func (r *Registry) getWorldStatus() Result {
	snap := r.state.Snapshot()
	return success("world status", map[string]any{
		"status":         snap.Status,
		"emergency_stop": snap.Emergency.Triggered,
		"credit":         snap.Credit,
		"team_controls":  snap.Controls,
		"active_tasks":   countTasks(snap.Tasks, world.TaskInProgress),
		"pending_tasks":  countTasks(snap.Tasks, world.TaskPending),
		"open_decisions": countDecisions(snap.Decisions, world.DecisionPending),
	})
}

func (r *Registry) listTasks(teamID string, input map[string]any) Result {
	snap := r.state.Snapshot()
	status := world.TaskStatus(strArg(input, "status"))
	scope := strArg(input, "team_id")
	if scope == "" {
		scope = teamID
	}
	var tasks []world.Task
	for _, t := range snap.Tasks {
		if scope != "all" && t.TeamID != scope {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, t)
	}
	return success(fmt.Sprintf("%d task(s)", len(tasks)), tasks)
}

func (r *Registry) listDecisions(teamID string, input map[string]any) Result {
	snap := r.state.Snapshot()
	status := world.DecisionStatus(strArg(input, "status"))
	scope := strArg(input, "team_id")
	if scope == "" {
		scope = teamID
	}
	var decisions []world.Decision
	for _, d := range snap.Decisions {
		if scope != "all" && d.TeamID != scope {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		decisions = append(decisions, d)
	}
	return success(fmt.Sprintf("%d decision(s)", len(decisions)), decisions)
}

func (r *Registry) getTeamInfo(teamID string, input map[string]any) Result {
	id := strArg(input, "team_id")
	if id == "" {
		id = teamID
	}
	team, ctl, ok := r.state.Team(id)
	if !ok {
		return failure(fmt.Sprintf("team %s not found", id))
	}
	return success("team info", map[string]any{"team": team, "control": ctl})
}

func (r *Registry) recentActivity(teamID string, input map[string]any) Result {
	snap := r.state.Snapshot()
	limit := 20
	if n, ok := intArg(input, "limit"); ok && n > 0 {
		limit = n
	}
	scope := strArg(input, "team_id")
	if scope == "" {
		scope = teamID
	}
	var acts []world.Activity
	for i := len(snap.Recent) - 1; i >= 0 && len(acts) < limit; i-- {
		a := snap.Recent[i]
		if scope != "all" && a.TeamID != scope {
			continue
		}
		acts = append(acts, a)
	}
	return success(fmt.Sprintf("%d activity entries", len(acts)), acts)
}

// --- action tools: one mutation each ---

func (r *Registry) createTask(teamID string, input map[string]any) Result {
	title := strArg(input, "title")
	if title == "" {
		return failure("title is required")
	}
	t, err := r.state.CreateTask(teamID, title, strArg(input, "description"),
		world.TaskPriority(strArg(input, "priority")))
	if err != nil {
		return failure(err.Error())
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("created task %q", t.Title), "task", "create")
	return success("task created", t)
}

func (r *Registry) updateTaskStatus(teamID string, input map[string]any) Result {
	id := strArg(input, "task_id")
	if id == "" {
		return failure("task_id is required")
	}
	status := world.TaskStatus(strArg(input, "status"))
	t, err := r.state.UpdateTaskStatus(id, status, strArg(input, "result"))
	if err != nil {
		return failure(err.Error())
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("task %q -> %s", t.Title, t.Status), "task", "status")
	return success("task updated", t)
}

func (r *Registry) reportProgress(teamID string, input map[string]any) Result {
	id := strArg(input, "task_id")
	if id == "" {
		return failure("task_id is required")
	}
	progress, ok := intArg(input, "progress")
	if !ok {
		return failure("progress is required")
	}
	t, err := r.state.SetTaskProgress(id, progress)
	if err != nil {
		return failure(err.Error())
	}
	if note := strArg(input, "note"); note != "" {
		r.state.AppendActivity(teamID, "", note, "progress", "report")
	}
	return success("progress recorded", t)
}

func (r *Registry) createDecision(teamID string, input map[string]any) Result {
	title := strArg(input, "title")
	if title == "" {
		return failure("title is required")
	}
	d, err := r.state.CreateDecision(teamID, title, strArg(input, "description"),
		teamID, world.TaskPriority(strArg(input, "priority")), strSliceArg(input, "options"))
	if err != nil {
		return failure(err.Error())
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("requested decision %q", d.Title), "decision", "create")
	return success("decision requested", d)
}

// resolveDecision is in the catalog so the owner surface shares the tool
// contract, but agents may never resolve decisions; that judgment is
// reserved for humans.
func (r *Registry) resolveDecision(teamID string, actor world.Actor, input map[string]any) Result {
	if actor != world.ActorHuman {
		return failure("decisions can only be resolved by the owner")
	}
	id := strArg(input, "decision_id")
	if id == "" {
		return failure("decision_id is required")
	}
	status := world.DecisionStatus(strArg(input, "status"))
	d, err := r.state.ResolveDecision(id, status, strArg(input, "resolved_by"))
	if err != nil {
		return failure(err.Error())
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("decision %q %s", d.Title, d.Status), "decision", "resolve")
	return success("decision resolved", d)
}

func (r *Registry) sendMessage(ctx context.Context, teamID string, input map[string]any) Result {
	content := strArg(input, "content")
	if content == "" {
		return failure("content is required")
	}
	msg := &comms.Message{
		Type:    comms.TypeDirect,
		From:    teamID,
		To:      strArg(input, "to"),
		Subject: strArg(input, "subject"),
		Content: content,
	}
	if msg.To == "" {
		msg.Type = comms.TypeBroadcast
	}
	if err := r.bus.Publish(ctx, msg); err != nil {
		return failure(fmt.Sprintf("publish: %v", err))
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("sent %s message", msg.Type), "comms", "message")
	return success("message sent", map[string]any{"id": msg.ID})
}

func (r *Registry) deleteTask(teamID string, input map[string]any) Result {
	id := strArg(input, "task_id")
	if id == "" {
		return failure("task_id is required")
	}
	if err := r.state.DeleteTask(id); err != nil {
		return failure(err.Error())
	}
	r.state.AppendActivity(teamID, "", fmt.Sprintf("deleted task %s", id), "task", "delete")
	return success("task deleted", nil)
}

func countTasks(tasks []world.Task, status world.TaskStatus) int {
	n := 0
	for _, t := range tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func countDecisions(decisions []world.Decision, status world.DecisionStatus) int {
	n := 0
	for _, d := range decisions {
		if d.Status == status {
			n++
		}
	}
	return n
}
