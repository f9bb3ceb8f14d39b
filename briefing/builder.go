// Package briefing turns a world snapshot into the bounded natural-language
// document injected into each model call.
package briefing

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/warden/world"
)

// DefaultBudget is the soft character ceiling for a briefing.
const DefaultBudget = 8000

const maxActivityEntries = 20

// Builder assembles briefings. Build is a pure function of the snapshot:
// same snapshot, same output.
type Builder struct {
	// Budget is the soft character ceiling. When exceeded, the recent
	// activity section is trimmed first, then cross-team awareness. The
	// identity section is never trimmed.
	Budget int

	caser cases.Caser
}

// NewBuilder returns a Builder with the default budget.
func NewBuilder() *Builder {
	return &Builder{
		Budget: DefaultBudget,
		caser:  cases.Title(language.English),
	}
}

// Build produces the briefing for one team from one snapshot.
func (b *Builder) Build(teamID string, snap world.Snapshot) string {
	budget := b.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	activityN := maxActivityEntries
	crossN := len(snap.Teams)
	taskN := len(snap.Tasks)
	for {
		doc := b.assemble(teamID, snap, activityN, crossN, taskN)
		if len(doc) <= budget {
			return doc
		}
		// Trim lowest-priority content first: recent activity, then
		// cross-team awareness, then the open task list itself. Identity
		// and guidelines always survive.
		if activityN > 0 {
			activityN /= 2
			continue
		}
		if crossN > 0 {
			crossN /= 2
			continue
		}
		if taskN > 1 {
			taskN /= 2
			continue
		}
		return doc
	}
}

func (b *Builder) assemble(teamID string, snap world.Snapshot, activityN, crossN, taskN int) string {
	var doc strings.Builder

	b.writeIdentity(&doc, teamID, snap)
	b.writeCurrentWork(&doc, teamID, snap, taskN)
	if crossN > 0 {
		b.writeCrossTeam(&doc, teamID, snap, crossN)
	}
	if activityN > 0 {
		b.writeActivity(&doc, teamID, snap, activityN)
	}
	b.writeBudget(&doc, snap)
	b.writeGuidelines(&doc)

	return doc.String()
}

func (b *Builder) writeIdentity(doc *strings.Builder, teamID string, snap world.Snapshot) {
	var team *world.Team
	for i := range snap.Teams {
		if snap.Teams[i].ID == teamID {
			team = &snap.Teams[i]
			break
		}
	}
	doc.WriteString("# Identity\n")
	if team == nil {
		fmt.Fprintf(doc, "You are team %s.\n", teamID)
	} else {
		name := team.Name
		if name == "" {
			name = b.caser.String(strings.ReplaceAll(team.ID, "_", " "))
		}
		fmt.Fprintf(doc, "You are the %s team (%s).\n", name, team.ID)
		if team.SystemPrompt != "" {
			doc.WriteString(team.SystemPrompt)
			doc.WriteString("\n")
		}
	}
	ctl, ok := snap.Controls[teamID]
	if ok {
		fmt.Fprintf(doc, "Automation level: %s. World status: %s.\n", ctl.Level, snap.Status)
	} else {
		fmt.Fprintf(doc, "World status: %s.\n", snap.Status)
	}
	fmt.Fprintf(doc, "Snapshot taken: %s\n", snap.TakenAt.Format("2006-01-02 15:04:05 MST"))
}

func (b *Builder) writeCurrentWork(doc *strings.Builder, teamID string, snap world.Snapshot, limit int) {
	doc.WriteString("\n# Current Work\n")
	n, omitted := 0, 0
	for _, t := range snap.Tasks {
		if t.TeamID != teamID || t.Status == world.TaskCompleted || t.Status == world.TaskCancelled {
			continue
		}
		if n >= limit {
			omitted++
			continue
		}
		n++
		fmt.Fprintf(doc, "- [%s] %s (%s, priority %s", t.Status, t.Title, t.ID, t.Priority)
		if t.Status == world.TaskInProgress {
			fmt.Fprintf(doc, ", %d%% done", t.Progress)
		}
		doc.WriteString(")\n")
	}
	if n == 0 {
		doc.WriteString("No open tasks.\n")
	}
	if omitted > 0 {
		fmt.Fprintf(doc, "...and %d more open task(s); call list_tasks for the rest.\n", omitted)
	}

	pending := 0
	for _, d := range snap.Decisions {
		if d.TeamID == teamID && d.Status == world.DecisionPending {
			pending++
		}
	}
	if pending > 0 {
		fmt.Fprintf(doc, "%d decision(s) awaiting the owner; do not block on them.\n", pending)
	}
}

func (b *Builder) writeCrossTeam(doc *strings.Builder, teamID string, snap world.Snapshot, limit int) {
	doc.WriteString("\n# Other Teams\n")
	written := 0
	for _, t := range snap.Teams {
		if t.ID == teamID || !t.Active || written >= limit {
			continue
		}
		open, inProgress := 0, 0
		for _, task := range snap.Tasks {
			if task.TeamID != t.ID {
				continue
			}
			switch task.Status {
			case world.TaskPending, world.TaskBlocked:
				open++
			case world.TaskInProgress:
				inProgress++
			}
		}
		ctl := snap.Controls[t.ID]
		fmt.Fprintf(doc, "- %s: %s automation, %d in progress, %d open\n",
			t.ID, ctl.Level, inProgress, open)
		written++
	}
	if written == 0 {
		doc.WriteString("No other active teams.\n")
	}
}

func (b *Builder) writeActivity(doc *strings.Builder, teamID string, snap world.Snapshot, limit int) {
	doc.WriteString("\n# Recent Activity\n")
	written := 0
	for i := len(snap.Recent) - 1; i >= 0 && written < limit; i-- {
		a := snap.Recent[i]
		if a.TeamID != teamID && a.TeamID != "" {
			continue
		}
		fmt.Fprintf(doc, "- %s %s\n", a.Timestamp.Format("15:04:05"), a.Message)
		written++
	}
	if written == 0 {
		doc.WriteString("No recent activity.\n")
	}
}

func (b *Builder) writeBudget(doc *strings.Builder, snap world.Snapshot) {
	doc.WriteString("\n# Budget\n")
	c := snap.Credit
	if c.DailyLimit > 0 {
		fmt.Fprintf(doc, "Daily spend: $%.2f of $%.2f (%.0f%%)\n",
			c.CurrentDailySpend, c.DailyLimit, 100*c.CurrentDailySpend/c.DailyLimit)
	}
	if c.MonthlyLimit > 0 {
		fmt.Fprintf(doc, "Monthly spend: $%.2f of $%.2f (%.0f%%)\n",
			c.CurrentMonthly, c.MonthlyLimit, 100*c.CurrentMonthly/c.MonthlyLimit)
	}
	if c.DailyLimit <= 0 && c.MonthlyLimit <= 0 {
		doc.WriteString("No spending limits configured.\n")
	}
}

func (b *Builder) writeGuidelines(doc *strings.Builder) {
	doc.WriteString(`
# Operating Guidelines
- Work only on your own team's tasks; observe other teams, never mutate them.
- Keep task statuses current and report progress as you go.
- Raise a decision request when a choice needs the owner; continue with other work.
- Call signal_completion exactly once, when your assignment is done.
`)
}
