package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultActivityCap = 500

// State is the single owner of all shared world data. Every read takes a
// snapshot and every mutation is one critical section, so concurrent team
// loops never observe a partial write.
type State struct {
	mu sync.RWMutex

	status    Status
	pauseNote string

	teams    map[string]*Team
	controls map[string]*TeamControl

	tasks     map[string]*Task
	decisions map[string]*Decision

	// activities is a ring buffer: oldest entries are evicted first.
	activities []Activity
	actHead    int
	actLen     int

	credit    CreditProtection
	emergency EmergencyStopState

	now func() time.Time
}

// NewState creates a State in manual mode with the given credit limits.
func NewState(credit CreditProtection) *State {
	if credit.HardStopThreshold <= 0 {
		credit.HardStopThreshold = 1.0
	}
	return &State{
		status:     StatusManual,
		teams:      make(map[string]*Team),
		controls:   make(map[string]*TeamControl),
		tasks:      make(map[string]*Task),
		decisions:  make(map[string]*Decision),
		activities: make([]Activity, defaultActivityCap),
		credit:     credit,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- Teams ---

// AddTeam registers a team. New teams start active with manual automation.
func (s *State) AddTeam(t Team, level AutomationLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		return fmt.Errorf("team id is required")
	}
	if _, ok := s.teams[t.ID]; ok {
		return fmt.Errorf("team %s already exists", t.ID)
	}
	if !ValidAutomationLevel(level) {
		level = AutomationManual
	}
	t.Active = true
	s.teams[t.ID] = &t
	s.controls[t.ID] = &TeamControl{Level: level}
	return nil
}

// DeactivateTeam marks a team inactive. Teams are never removed.
func (s *State) DeactivateTeam(teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return fmt.Errorf("team %s not found", teamID)
	}
	t.Active = false
	s.controls[teamID].Level = AutomationStopped
	return nil
}

// --- Tasks ---

// CreateTask stores a new task and returns it. Empty priority defaults to
// medium; the task starts pending.
func (s *State) CreateTask(teamID, title, description string, priority TaskPriority) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if _, ok := s.teams[teamID]; !ok {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	now := s.now().UTC()
	t := &Task{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.ID] = t
	return cloneTask(t), nil
}

// UpdateTaskStatus applies a status transition. Setting the current status is
// a no-op (idempotent: UpdatedAt is not bumped), invalid transitions are
// rejected, and CompletedAt is maintained so it is set iff completed.
func (s *State) UpdateTaskStatus(id string, status TaskStatus, result string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if !ValidTaskStatus(status) {
		return nil, fmt.Errorf("unknown task status %q", status)
	}
	if t.Status == status {
		return cloneTask(t), nil
	}
	if !validTaskTransition(t.Status, status) {
		return nil, fmt.Errorf("task %s: invalid transition %s -> %s", id, t.Status, status)
	}
	now := s.now().UTC()
	t.Status = status
	t.UpdatedAt = now
	if result != "" {
		t.Result = result
	}
	switch status {
	case TaskInProgress:
		if t.StartedAt == nil {
			started := now
			t.StartedAt = &started
		}
		t.CompletedAt = nil
	case TaskCompleted:
		completed := now
		t.CompletedAt = &completed
		t.Progress = 100
	default:
		t.CompletedAt = nil
	}
	return cloneTask(t), nil
}

// SetTaskProgress records progress for an in-flight task.
func (s *State) SetTaskProgress(id string, progress int) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if t.Status != TaskInProgress {
		return nil, fmt.Errorf("task %s is %s, progress only applies in_progress", id, t.Status)
	}
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("progress must be 0-100, got %d", progress)
	}
	t.Progress = progress
	t.UpdatedAt = s.now().UTC()
	return cloneTask(t), nil
}

// AssignAgents replaces the task's assigned agent list.
func (s *State) AssignAgents(id string, agents []string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	t.AssignedAgents = append([]string(nil), agents...)
	t.UpdatedAt = s.now().UTC()
	return cloneTask(t), nil
}

// DeleteTask removes a task. Completed tasks cannot be deleted.
func (s *State) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status == TaskCompleted {
		return fmt.Errorf("task %s is completed and cannot be deleted", id)
	}
	delete(s.tasks, id)
	return nil
}

// --- Decisions ---

// CreateDecision records a pending decision request from an agent.
func (s *State) CreateDecision(teamID, title, description, requestedBy string, priority TaskPriority, options []string) (*Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		return nil, fmt.Errorf("decision title is required")
	}
	if _, ok := s.teams[teamID]; !ok {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	d := &Decision{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      DecisionPending,
		Options:     append([]string(nil), options...),
		RequestedBy: requestedBy,
		CreatedAt:   s.now().UTC(),
	}
	s.decisions[d.ID] = d
	return cloneDecision(d), nil
}

// ResolveDecision sets a decision's terminal status. Once resolved the record
// is immutable; further resolution attempts fail.
func (s *State) ResolveDecision(id string, status DecisionStatus, resolvedBy string) (*Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[id]
	if !ok {
		return nil, fmt.Errorf("decision %s not found", id)
	}
	if d.Status != DecisionPending {
		return nil, fmt.Errorf("decision %s already resolved (%s)", id, d.Status)
	}
	switch status {
	case DecisionApproved, DecisionRejected, DecisionDeferred:
	default:
		return nil, fmt.Errorf("invalid resolution status %q", status)
	}
	now := s.now().UTC()
	d.Status = status
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	return cloneDecision(d), nil
}

// --- Activities ---

// AppendActivity appends a log entry, evicting the oldest when full.
func (s *State) AppendActivity(teamID, agentID, message, tag, typ string) Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Activity{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		AgentID:   agentID,
		Message:   message,
		Tag:       tag,
		Type:      typ,
		Timestamp: s.now().UTC(),
	}
	idx := (s.actHead + s.actLen) % len(s.activities)
	s.activities[idx] = a
	if s.actLen < len(s.activities) {
		s.actLen++
	} else {
		s.actHead = (s.actHead + 1) % len(s.activities)
	}
	return a
}

// --- Snapshot ---

// Snapshot is an immutable copy of the world at one instant.
type Snapshot struct {
	Status    Status                 `json:"status"`
	PauseNote string                 `json:"pause_note,omitempty"`
	Teams     []Team                 `json:"teams"`
	Controls  map[string]TeamControl `json:"controls"`
	Tasks     []Task                 `json:"tasks"`
	Decisions []Decision             `json:"decisions"`
	Recent    []Activity             `json:"recent_activity"`
	Credit    CreditProtection       `json:"credit"`
	Emergency EmergencyStopState     `json:"emergency"`
	TakenAt   time.Time              `json:"taken_at"`
}

// Snapshot returns a deep copy of the current world. Activities are returned
// oldest-first.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:    s.status,
		PauseNote: s.pauseNote,
		Controls:  make(map[string]TeamControl, len(s.controls)),
		Credit:    s.credit,
		Emergency: s.emergency,
		TakenAt:   s.now().UTC(),
	}
	for _, t := range s.teams {
		snap.Teams = append(snap.Teams, *t)
	}
	for id, c := range s.controls {
		snap.Controls[id] = *c
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, *cloneTask(t))
	}
	for _, d := range s.decisions {
		snap.Decisions = append(snap.Decisions, *cloneDecision(d))
	}
	for i := 0; i < s.actLen; i++ {
		snap.Recent = append(snap.Recent, s.activities[(s.actHead+i)%len(s.activities)])
	}
	sortSnapshot(&snap)
	return snap
}

// Team returns the team and its control, if known.
func (s *State) Team(id string) (Team, TeamControl, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return Team{}, TeamControl{}, false
	}
	return *t, *s.controls[id], true
}

// Task returns a copy of the task, if present.
func (s *State) Task(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// Decision returns a copy of the decision, if present.
func (s *State) Decision(id string) (*Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return nil, false
	}
	return cloneDecision(d), true
}

func cloneTask(t *Task) *Task {
	c := *t
	c.AssignedAgents = append([]string(nil), t.AssignedAgents...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}

func cloneDecision(d *Decision) *Decision {
	c := *d
	c.Options = append([]string(nil), d.Options...)
	if d.ResolvedAt != nil {
		resolved := *d.ResolvedAt
		c.ResolvedAt = &resolved
	}
	return &c
}
