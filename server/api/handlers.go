// Package api implements the REST command/query surface over the world.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/warden/agent"
	"github.com/GoCodeAlone/warden/comms"
	"github.com/GoCodeAlone/warden/provider"
	"github.com/GoCodeAlone/warden/resilience"
	"github.com/GoCodeAlone/warden/tool"
	"github.com/GoCodeAlone/warden/world"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	State      *world.State
	Controller *world.Controller
	Registry   *tool.Registry
	Loops      *agent.Manager
	Bus        comms.Bus
	Breaker    *resilience.Breaker
	Logger     *slog.Logger
	Version    string
	Started    time.Time

	// ExecuteCeiling bounds blocking orchestrate execute calls.
	ExecuteCeiling time.Duration
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/teams", h.listTeams)
	mux.HandleFunc("PUT /api/teams/{id}/automation", h.setAutomation)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("PUT /api/tasks/{id}/status", h.updateTaskStatus)

	mux.HandleFunc("GET /api/decisions", h.listDecisions)
	mux.HandleFunc("PUT /api/decisions/{id}", h.resolveDecision)

	mux.HandleFunc("GET /api/activities", h.listActivities)

	mux.HandleFunc("GET /api/messages", h.listMessages)
	mux.HandleFunc("POST /api/broadcast", h.broadcast)

	mux.HandleFunc("POST /api/orchestrate", h.orchestrate)

	// World controls are privileged: always available, never gated by
	// automation level, because the off switch must not depend on the thing
	// it switches off.
	mux.HandleFunc("POST /api/world/pause", h.pauseWorld)
	mux.HandleFunc("POST /api/world/resume", h.resumeWorld)
	mux.HandleFunc("PUT /api/world/status", h.setWorldStatus)
	mux.HandleFunc("POST /api/world/emergency-stop", h.emergencyStop)
	mux.HandleFunc("POST /api/world/clear-emergency", h.clearEmergency)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeResult maps a tool dispatch result onto an HTTP response. Gate
// denials and validation failures are expected outcomes, reported with 409.
func writeResult(w http.ResponseWriter, res tool.Result) {
	if !res.Success {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- status ---

// Status returns the handler for GET /api/status (public).
func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := h.State.Snapshot()
		running := h.Loops.Running()
		if running == nil {
			running = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":        h.Version,
			"uptime_seconds": int(time.Since(h.Started).Seconds()),
			"world_status":   snap.Status,
			"pause_note":     snap.PauseNote,
			"emergency_stop": snap.Emergency,
			"credit":         snap.Credit,
			"team_controls":  snap.Controls,
			"running_loops":  running,
			"breaker":        h.Breaker.Stats(),
		})
	}
}

// --- teams ---

func (h *Handlers) listTeams(w http.ResponseWriter, _ *http.Request) {
	snap := h.State.Snapshot()
	type teamView struct {
		world.Team
		Control world.TeamControl `json:"control"`
	}
	views := make([]teamView, 0, len(snap.Teams))
	for _, t := range snap.Teams {
		views = append(views, teamView{Team: t, Control: snap.Controls[t.ID]})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) setAutomation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Level  string `json:"level"`
		Paused *bool  `json:"paused,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Level != "" {
		if err := h.Controller.SetTeamAutomation(id, world.AutomationLevel(req.Level)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Paused != nil {
		if err := h.Controller.SetTeamPaused(id, *req.Paused); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	_, ctl, ok := h.State.Team(id)
	if !ok {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, ctl)
}

// --- tasks ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	snap := h.State.Snapshot()
	teamID := r.URL.Query().Get("team_id")
	status := world.TaskStatus(r.URL.Query().Get("status"))

	tasks := make([]world.Task, 0)
	for _, t := range snap.Tasks {
		if teamID != "" && t.TeamID != teamID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, t)
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID      string `json:"team_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	// Owner mutations run through the same dispatcher, and the same gates,
	// as agent tool calls.
	res := h.Registry.Dispatch(r.Context(), provider.ToolCall{
		Name: tool.CreateTask,
		Input: map[string]any{
			"title":       req.Title,
			"description": req.Description,
			"priority":    req.Priority,
		},
	}, req.TeamID, world.ActorHuman)
	writeResult(w, res)
}

func (h *Handlers) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, ok := h.State.Task(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	res := h.Registry.Dispatch(r.Context(), provider.ToolCall{
		Name: tool.UpdateTaskStatus,
		Input: map[string]any{
			"task_id": id,
			"status":  req.Status,
			"result":  req.Result,
		},
	}, t.TeamID, world.ActorHuman)
	writeResult(w, res)
}

// --- decisions ---

func (h *Handlers) listDecisions(w http.ResponseWriter, r *http.Request) {
	snap := h.State.Snapshot()
	teamID := r.URL.Query().Get("team_id")
	status := world.DecisionStatus(r.URL.Query().Get("status"))

	decisions := make([]world.Decision, 0)
	for _, d := range snap.Decisions {
		if teamID != "" && d.TeamID != teamID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		decisions = append(decisions, d)
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (h *Handlers) resolveDecision(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status     string `json:"status"`
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d, ok := h.State.Decision(id)
	if !ok {
		writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "owner"
	}
	res := h.Registry.Dispatch(r.Context(), provider.ToolCall{
		Name: tool.ResolveDecision,
		Input: map[string]any{
			"decision_id": id,
			"status":      req.Status,
			"resolved_by": req.ResolvedBy,
		},
	}, d.TeamID, world.ActorHuman)
	writeResult(w, res)
}

// --- activities ---

func (h *Handlers) listActivities(w http.ResponseWriter, r *http.Request) {
	snap := h.State.Snapshot()
	teamID := r.URL.Query().Get("team_id")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	// Newest first.
	activities := make([]world.Activity, 0)
	for i := len(snap.Recent) - 1; i >= 0 && len(activities) < limit; i-- {
		a := snap.Recent[i]
		if teamID != "" && a.TeamID != teamID {
			continue
		}
		activities = append(activities, a)
	}
	writeJSON(w, http.StatusOK, activities)
}

// --- messages ---

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("team_id")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	msgs, err := h.Bus.History(teamID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []*comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) broadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if gate := h.Controller.CheckGlobal(); !gate.Allowed {
		writeJSON(w, http.StatusConflict, tool.Result{Success: false, Message: gate.Reason})
		return
	}
	msg := &comms.Message{
		Type:    comms.TypeBroadcast,
		From:    "owner",
		Subject: req.Subject,
		Content: req.Content,
	}
	if err := h.Bus.Publish(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.State.AppendActivity("", "owner", "owner broadcast: "+req.Subject, "comms", "broadcast")
	writeJSON(w, http.StatusOK, map[string]string{"id": msg.ID})
}

// --- orchestrate ---

func (h *Handlers) orchestrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID       string `json:"team_id"`
		Action       string `json:"action"` // start, stop, execute
		Instructions string `json:"instructions"`
		TaskID       string `json:"task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "team_id is required")
		return
	}
	assignment := agent.Assignment{Instructions: req.Instructions, TaskID: req.TaskID}

	switch req.Action {
	case "start":
		if err := h.Loops.Start(req.TeamID, assignment); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"team_id": req.TeamID, "state": "running"})
	case "stop":
		if err := h.Loops.Stop(req.TeamID); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"team_id": req.TeamID, "state": "stopped"})
	case "execute":
		ceiling := h.ExecuteCeiling
		if ceiling <= 0 {
			ceiling = 5 * time.Minute
		}
		out, err := h.Loops.Execute(r.Context(), req.TeamID, assignment, ceiling)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusBadRequest, "action must be start, stop, or execute")
	}
}

// --- world controls ---

func (h *Handlers) pauseWorld(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.Controller.PauseWorld(req.Reason)
	h.State.AppendActivity("", "owner", "world paused: "+req.Reason, "world", "pause")
	writeJSON(w, http.StatusOK, map[string]string{"world_status": string(world.StatusPaused)})
}

func (h *Handlers) resumeWorld(w http.ResponseWriter, _ *http.Request) {
	h.Controller.ResumeWorld()
	snap := h.State.Snapshot()
	h.State.AppendActivity("", "owner", "world resumed", "world", "resume")
	writeJSON(w, http.StatusOK, map[string]string{"world_status": string(snap.Status)})
}

func (h *Handlers) setWorldStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Controller.SetWorldStatus(world.Status(req.Status)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"world_status": req.Status})
}

func (h *Handlers) emergencyStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "triggered by owner"
	}
	h.Controller.EmergencyStop(req.Reason)
	h.State.AppendActivity("", "owner", "EMERGENCY STOP: "+req.Reason, "world", "emergency")
	h.Logger.Warn("emergency stop triggered", slog.String("reason", req.Reason))
	writeJSON(w, http.StatusOK, map[string]any{"emergency_stop": true, "reason": req.Reason})
}

func (h *Handlers) clearEmergency(w http.ResponseWriter, _ *http.Request) {
	h.Controller.ClearEmergencyStop()
	h.State.AppendActivity("", "owner", "emergency stop cleared", "world", "emergency")
	writeJSON(w, http.StatusOK, map[string]any{"emergency_stop": false})
}
