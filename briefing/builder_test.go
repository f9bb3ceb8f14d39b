package briefing

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/warden/world"
)

func crowdedSnapshot(t *testing.T) world.Snapshot {
	t.Helper()
	s := world.NewState(world.CreditProtection{DailyLimit: 25, MonthlyLimit: 300})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	if err := s.AddTeam(world.Team{
		ID:           "ops",
		Name:         "Operations",
		SystemPrompt: "Keep the lights on.",
	}, world.AutomationSupervised); err != nil {
		t.Fatalf("AddTeam: %v", err)
	}
	for i := 0; i < 8; i++ {
		if err := s.AddTeam(world.Team{ID: fmt.Sprintf("team-%d", i)}, world.AutomationManual); err != nil {
			t.Fatalf("AddTeam: %v", err)
		}
	}
	for i := 0; i < 30; i++ {
		if _, err := s.CreateTask("ops", fmt.Sprintf("task %d with a reasonably long descriptive title", i),
			strings.Repeat("detail ", 30), world.PriorityMedium); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	for i := 0; i < 100; i++ {
		s.AppendActivity("ops", "agent", fmt.Sprintf("activity entry %d with enough words to take up briefing space", i), "", "")
	}
	return s.Snapshot()
}

func TestBuild_RespectsBudget(t *testing.T) {
	b := NewBuilder()
	b.Budget = 2000

	doc := b.Build("ops", crowdedSnapshot(t))
	if len(doc) > b.Budget {
		t.Errorf("len(doc) = %d, exceeds budget %d", len(doc), b.Budget)
	}
}

func TestBuild_IdentitySurvivesTrimming(t *testing.T) {
	b := NewBuilder()
	b.Budget = 1500

	doc := b.Build("ops", crowdedSnapshot(t))
	if !strings.Contains(doc, "You are the Operations team (ops)") {
		t.Error("identity line missing after trimming")
	}
	if !strings.Contains(doc, "Keep the lights on.") {
		t.Error("system prompt missing after trimming")
	}
	if !strings.Contains(doc, "# Operating Guidelines") {
		t.Error("guidelines missing after trimming")
	}
}

func TestBuild_ActivityTrimmedBeforeCrossTeam(t *testing.T) {
	b := NewBuilder()
	snap := crowdedSnapshot(t)

	full := b.Build("ops", snap)
	fullActivity := strings.Count(full, "activity entry")

	// A budget tight enough to force trimming but generous enough to keep
	// the cross-team section.
	b.Budget = len(full) - 500
	trimmed := b.Build("ops", snap)

	if got := strings.Count(trimmed, "activity entry"); got >= fullActivity {
		t.Errorf("activity entries = %d, want fewer than %d", got, fullActivity)
	}
	if !strings.Contains(trimmed, "# Other Teams") {
		t.Error("cross-team section dropped before activity was exhausted")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder()
	snap := crowdedSnapshot(t)

	first := b.Build("ops", snap)
	for i := 0; i < 5; i++ {
		if got := b.Build("ops", snap); got != first {
			t.Fatal("same snapshot produced different briefings")
		}
	}
}

func TestBuild_BudgetSection(t *testing.T) {
	b := NewBuilder()
	s := world.NewState(world.CreditProtection{DailyLimit: 25, MonthlyLimit: 300})
	s.AddTeam(world.Team{ID: "ops"}, world.AutomationManual) //nolint:errcheck
	ctrl := world.NewController(s)
	ctrl.RecordSpend(12.5)

	doc := b.Build("ops", s.Snapshot())
	if !strings.Contains(doc, "Daily spend: $12.50 of $25.00 (50%)") {
		t.Errorf("daily budget line missing:\n%s", doc)
	}
}

func TestBuild_UnknownTeamStillBriefs(t *testing.T) {
	b := NewBuilder()
	s := world.NewState(world.CreditProtection{})
	doc := b.Build("ghost", s.Snapshot())
	if !strings.Contains(doc, "You are team ghost.") {
		t.Errorf("fallback identity missing:\n%s", doc)
	}
	if !strings.Contains(doc, "No open tasks.") {
		t.Error("empty work section missing")
	}
}

func TestBuild_PendingDecisionsNoted(t *testing.T) {
	b := NewBuilder()
	s := world.NewState(world.CreditProtection{})
	s.AddTeam(world.Team{ID: "ops"}, world.AutomationManual)                         //nolint:errcheck
	s.CreateDecision("ops", "buy more GPUs?", "", "ops", world.PriorityHigh, nil)    //nolint:errcheck
	s.CreateDecision("ops", "change providers?", "", "ops", world.PriorityHigh, nil) //nolint:errcheck

	doc := b.Build("ops", s.Snapshot())
	if !strings.Contains(doc, "2 decision(s) awaiting the owner") {
		t.Errorf("pending decision note missing:\n%s", doc)
	}
}
