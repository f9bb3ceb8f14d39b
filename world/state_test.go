package world

import (
	"testing"
	"time"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	s := NewState(CreditProtection{DailyLimit: 10, MonthlyLimit: 100})
	if err := s.AddTeam(Team{ID: "ops", Name: "Operations"}, AutomationManual); err != nil {
		t.Fatalf("AddTeam: %v", err)
	}
	return s
}

func TestState_AddTeam(t *testing.T) {
	s := newTestState(t)

	if err := s.AddTeam(Team{ID: "ops"}, AutomationManual); err == nil {
		t.Error("expected error adding duplicate team id")
	}
	if err := s.AddTeam(Team{}, AutomationManual); err == nil {
		t.Error("expected error adding team without id")
	}

	team, ctl, ok := s.Team("ops")
	if !ok {
		t.Fatal("team ops not found")
	}
	if !team.Active {
		t.Error("new team should start active")
	}
	if ctl.Level != AutomationManual {
		t.Errorf("Level = %q, want manual", ctl.Level)
	}
}

func TestState_DeactivateTeam(t *testing.T) {
	s := newTestState(t)

	if err := s.DeactivateTeam("ops"); err != nil {
		t.Fatalf("DeactivateTeam: %v", err)
	}
	team, ctl, _ := s.Team("ops")
	if team.Active {
		t.Error("team should be inactive")
	}
	if ctl.Level != AutomationStopped {
		t.Errorf("Level = %q, want stopped", ctl.Level)
	}
	if err := s.DeactivateTeam("nope"); err == nil {
		t.Error("expected error for unknown team")
	}
}

func TestState_CreateTask_Defaults(t *testing.T) {
	s := newTestState(t)

	task, err := s.CreateTask("ops", "ship release", "", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want medium", task.Priority)
	}
	if task.Status != TaskPending {
		t.Errorf("Status = %q, want pending", task.Status)
	}
	if task.ID == "" {
		t.Error("task id should be generated")
	}

	if _, err := s.CreateTask("ops", "", "", ""); err == nil {
		t.Error("expected error for empty title")
	}
	if _, err := s.CreateTask("nope", "x", "", ""); err == nil {
		t.Error("expected error for unknown team")
	}
}

func TestState_TaskTransitions(t *testing.T) {
	s := newTestState(t)
	task, _ := s.CreateTask("ops", "ship release", "", PriorityHigh)

	// pending -> completed skips in_progress and must fail
	if _, err := s.UpdateTaskStatus(task.ID, TaskCompleted, ""); err == nil {
		t.Error("pending -> completed should be rejected")
	}

	if _, err := s.UpdateTaskStatus(task.ID, TaskInProgress, ""); err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	got, _ := s.Task(task.ID)
	if got.StartedAt == nil {
		t.Error("StartedAt should be set when work starts")
	}

	// blocked is re-enterable
	if _, err := s.UpdateTaskStatus(task.ID, TaskBlocked, ""); err != nil {
		t.Fatalf("in_progress -> blocked: %v", err)
	}
	if _, err := s.UpdateTaskStatus(task.ID, TaskInProgress, ""); err != nil {
		t.Fatalf("blocked -> in_progress: %v", err)
	}

	done, err := s.UpdateTaskStatus(task.ID, TaskCompleted, "released v1.2")
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt should be set on completion")
	}
	if done.Progress != 100 {
		t.Errorf("Progress = %d, want 100", done.Progress)
	}
	if done.Result != "released v1.2" {
		t.Errorf("Result = %q", done.Result)
	}

	// completed is terminal
	if _, err := s.UpdateTaskStatus(task.ID, TaskInProgress, ""); err == nil {
		t.Error("completed -> in_progress should be rejected")
	}
}

func TestState_UpdateTaskStatus_Idempotent(t *testing.T) {
	s := newTestState(t)
	task, _ := s.CreateTask("ops", "ship release", "", "")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	first, err := s.UpdateTaskStatus(task.ID, TaskInProgress, "")
	if err != nil {
		t.Fatalf("first update: %v", err)
	}

	// A repeated identical update leaves the record untouched.
	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	second, err := s.UpdateTaskStatus(task.ID, TaskInProgress, "")
	if err != nil {
		t.Fatalf("repeated update: %v", err)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("UpdatedAt bumped on no-op: %v != %v", second.UpdatedAt, first.UpdatedAt)
	}
}

func TestState_SetTaskProgress(t *testing.T) {
	s := newTestState(t)
	task, _ := s.CreateTask("ops", "ship release", "", "")

	if _, err := s.SetTaskProgress(task.ID, 50); err == nil {
		t.Error("progress on a pending task should be rejected")
	}
	s.UpdateTaskStatus(task.ID, TaskInProgress, "") //nolint:errcheck
	if _, err := s.SetTaskProgress(task.ID, 101); err == nil {
		t.Error("progress > 100 should be rejected")
	}
	got, err := s.SetTaskProgress(task.ID, 60)
	if err != nil {
		t.Fatalf("SetTaskProgress: %v", err)
	}
	if got.Progress != 60 {
		t.Errorf("Progress = %d, want 60", got.Progress)
	}
}

func TestState_DeleteTask(t *testing.T) {
	s := newTestState(t)
	task, _ := s.CreateTask("ops", "ship release", "", "")
	s.UpdateTaskStatus(task.ID, TaskInProgress, "") //nolint:errcheck
	s.UpdateTaskStatus(task.ID, TaskCompleted, "")  //nolint:errcheck

	if err := s.DeleteTask(task.ID); err == nil {
		t.Error("completed tasks must not be deletable")
	}

	open, _ := s.CreateTask("ops", "draft changelog", "", "")
	if err := s.DeleteTask(open.ID); err != nil {
		t.Errorf("DeleteTask: %v", err)
	}
	if _, ok := s.Task(open.ID); ok {
		t.Error("task should be gone")
	}
}

func TestState_Decisions(t *testing.T) {
	s := newTestState(t)

	d, err := s.CreateDecision("ops", "switch provider?", "cost spike", "ops-agent", PriorityHigh, []string{"yes", "no"})
	if err != nil {
		t.Fatalf("CreateDecision: %v", err)
	}
	if d.Status != DecisionPending {
		t.Errorf("Status = %q, want pending", d.Status)
	}

	if _, err := s.ResolveDecision(d.ID, "maybe", "owner"); err == nil {
		t.Error("invalid resolution status should be rejected")
	}

	resolved, err := s.ResolveDecision(d.ID, DecisionApproved, "owner")
	if err != nil {
		t.Fatalf("ResolveDecision: %v", err)
	}
	if resolved.ResolvedAt == nil || resolved.ResolvedBy != "owner" {
		t.Errorf("resolution metadata missing: %+v", resolved)
	}

	// Resolved decisions are immutable.
	if _, err := s.ResolveDecision(d.ID, DecisionRejected, "owner"); err == nil {
		t.Error("re-resolving should fail")
	}
}

func TestState_ActivityRingEvicts(t *testing.T) {
	s := newTestState(t)
	for i := 0; i < defaultActivityCap+25; i++ {
		s.AppendActivity("ops", "agent", "entry", "", "")
	}
	snap := s.Snapshot()
	if len(snap.Recent) != defaultActivityCap {
		t.Errorf("len(Recent) = %d, want %d", len(snap.Recent), defaultActivityCap)
	}
}

func TestState_SnapshotIsIsolated(t *testing.T) {
	s := newTestState(t)
	task, _ := s.CreateTask("ops", "ship release", "", "")

	snap := s.Snapshot()
	snap.Tasks[0].Title = "mutated"
	snap.Teams[0].Name = "mutated"

	got, _ := s.Task(task.ID)
	if got.Title != "ship release" {
		t.Errorf("snapshot mutation leaked into state: %q", got.Title)
	}
	team, _, _ := s.Team("ops")
	if team.Name != "Operations" {
		t.Errorf("snapshot mutation leaked into team: %q", team.Name)
	}
}

func TestState_SnapshotDeterministicOrder(t *testing.T) {
	s := NewState(CreditProtection{})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := s.AddTeam(Team{ID: id, Name: id}, AutomationManual); err != nil {
			t.Fatalf("AddTeam %s: %v", id, err)
		}
	}
	// Same clock for every task, so ordering falls back to ID.
	for i := 0; i < 5; i++ {
		if _, err := s.CreateTask("alpha", "t", "", ""); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	first := s.Snapshot()
	for i := 0; i < 10; i++ {
		next := s.Snapshot()
		for j := range first.Teams {
			if next.Teams[j].ID != first.Teams[j].ID {
				t.Fatalf("team order unstable at %d: %q != %q", j, next.Teams[j].ID, first.Teams[j].ID)
			}
		}
		for j := range first.Tasks {
			if next.Tasks[j].ID != first.Tasks[j].ID {
				t.Fatalf("task order unstable at %d", j)
			}
		}
	}
	if first.Teams[0].ID != "alpha" || first.Teams[2].ID != "zeta" {
		t.Errorf("teams not sorted by id: %v", []string{first.Teams[0].ID, first.Teams[1].ID, first.Teams[2].ID})
	}
}
