package world

import "fmt"

// CreditVerdict grades an estimated spend against configured limits.
type CreditVerdict string

const (
	CreditOK       CreditVerdict = "ok"        // < 50% of a limit
	CreditCaution  CreditVerdict = "caution"   // >= 50%
	CreditWarning  CreditVerdict = "warning"   // >= 75%
	CreditCritical CreditVerdict = "critical"  // >= 90%
	CreditHardStop CreditVerdict = "hard_stop" // >= hard stop threshold, reject
)

// Actor distinguishes who is asking to act. Team automation levels gate
// agents; humans are only stopped by pause, emergency stop, and budget.
type Actor int

const (
	ActorAgent Actor = iota
	ActorHuman
)

// Gate is the outcome of a permission check. A denied gate is an expected,
// first-class outcome with a human-readable reason, not an error.
type Gate struct {
	Allowed bool
	Reason  string
}

func denied(format string, args ...any) Gate {
	return Gate{Reason: fmt.Sprintf(format, args...)}
}

var allowed = Gate{Allowed: true}

// Controller is the state machine over global and per-team controls. It is
// the only writer of the world's control flags.
type Controller struct {
	state *State

	// prevStatus remembers the mode to restore on resume.
	prevStatus Status
}

// NewController wraps the given state. The world starts in manual mode.
func NewController(state *State) *Controller {
	return &Controller{state: state, prevStatus: StatusManual}
}

// PauseWorld halts all action-category activity across every team.
// In-flight iterations finish their current tool call; the next gate check
// fails.
func (c *Controller) PauseWorld(reason string) {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		c.prevStatus = s.status
	}
	s.status = StatusPaused
	s.pauseNote = reason
}

// ResumeWorld restores the mode active before the pause.
func (c *Controller) ResumeWorld() {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return
	}
	s.status = c.prevStatus
	s.pauseNote = ""
}

// SetWorldStatus moves the world to an explicit operating mode.
func (c *Controller) SetWorldStatus(status Status) error {
	switch status {
	case StatusPaused, StatusManual, StatusSemiAuto, StatusAutonomous:
	default:
		return fmt.Errorf("unknown world status %q", status)
	}
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status != StatusPaused {
		s.pauseNote = ""
		c.prevStatus = status
	}
	return nil
}

// SetTeamAutomation sets a team's automation level.
func (c *Controller) SetTeamAutomation(teamID string, level AutomationLevel) error {
	if !ValidAutomationLevel(level) {
		return fmt.Errorf("unknown automation level %q", level)
	}
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[teamID]
	if !ok {
		return fmt.Errorf("team %s not found", teamID)
	}
	ctl.Level = level
	return nil
}

// SetTeamPaused toggles a single team's pause flag.
func (c *Controller) SetTeamPaused(teamID string, paused bool) error {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[teamID]
	if !ok {
		return fmt.Errorf("team %s not found", teamID)
	}
	ctl.Paused = paused
	return nil
}

// EmergencyStop trips the kill switch. Nothing acts again until a human
// calls ClearEmergencyStop; there is deliberately no automatic recovery.
func (c *Controller) EmergencyStop(reason string) {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergency = EmergencyStopState{Triggered: true, Reason: reason, At: s.now().UTC()}
}

// ClearEmergencyStop resets the kill switch.
func (c *Controller) ClearEmergencyStop() {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emergency = EmergencyStopState{}
}

// CheckCreditLimits grades what spending estimatedCost more would do to the
// daily and monthly budgets, returning the worse of the two verdicts. This is
// mandatory before every model call with non-zero estimated cost.
func (c *Controller) CheckCreditLimits(estimatedCost float64) CreditVerdict {
	s := c.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	daily := gradeSpend(s.credit.CurrentDailySpend+estimatedCost, s.credit.DailyLimit, s.credit.HardStopThreshold)
	monthly := gradeSpend(s.credit.CurrentMonthly+estimatedCost, s.credit.MonthlyLimit, s.credit.HardStopThreshold)
	return worseVerdict(daily, monthly)
}

// RecordSpend adds an incurred cost to the running daily and monthly totals.
func (c *Controller) RecordSpend(cost float64) {
	if cost <= 0 {
		return
	}
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit.CurrentDailySpend += cost
	s.credit.CurrentMonthly += cost
}

// ResetDailySpend zeroes the daily counter at day rollover.
func (c *Controller) ResetDailySpend() {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit.CurrentDailySpend = 0
}

// ResetMonthlySpend zeroes the monthly counter at month rollover.
func (c *Controller) ResetMonthlySpend() {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit.CurrentMonthly = 0
}

// CheckGlobal applies only the world-level gates: emergency stop, budget
// hard stop, and global pause. Used for operations with no single team, such
// as owner broadcasts.
func (c *Controller) CheckGlobal() Gate {
	s := c.state
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.emergency.Triggered {
		return denied("emergency stop active: %s", s.emergency.Reason)
	}
	daily := gradeSpend(s.credit.CurrentDailySpend, s.credit.DailyLimit, s.credit.HardStopThreshold)
	monthly := gradeSpend(s.credit.CurrentMonthly, s.credit.MonthlyLimit, s.credit.HardStopThreshold)
	if worseVerdict(daily, monthly) == CreditHardStop {
		return denied("budget hard stop: spending limit reached")
	}
	if s.status == StatusPaused {
		if s.pauseNote != "" {
			return denied("world paused: %s", s.pauseNote)
		}
		return denied("world paused")
	}
	return allowed
}

// Check combines the global status and the team's level with AND semantics:
// the action proceeds only if neither forbids it. Emergency stop and budget
// hard stop dominate everything, for agents and humans alike.
func (c *Controller) Check(teamID string, actor Actor) Gate {
	s := c.state
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.emergency.Triggered {
		return denied("emergency stop active: %s", s.emergency.Reason)
	}
	daily := gradeSpend(s.credit.CurrentDailySpend, s.credit.DailyLimit, s.credit.HardStopThreshold)
	monthly := gradeSpend(s.credit.CurrentMonthly, s.credit.MonthlyLimit, s.credit.HardStopThreshold)
	if worseVerdict(daily, monthly) == CreditHardStop {
		return denied("budget hard stop: spending limit reached")
	}
	if s.status == StatusPaused {
		if s.pauseNote != "" {
			return denied("world paused: %s", s.pauseNote)
		}
		return denied("world paused")
	}

	team, ok := s.teams[teamID]
	if !ok {
		return denied("team %s not found", teamID)
	}
	if !team.Active {
		return denied("team %s is deactivated", teamID)
	}
	ctl := s.controls[teamID]
	if ctl.Paused {
		return denied("team %s is paused", teamID)
	}

	if actor == ActorHuman {
		return allowed
	}

	// Agent actions need both a global mode and a team level that permit
	// unattended work.
	if s.status == StatusManual {
		return denied("world is in manual mode")
	}
	switch ctl.Level {
	case AutomationStopped:
		return denied("team %s automation is stopped", teamID)
	case AutomationManual:
		return denied("team %s requires manual approval", teamID)
	}
	return allowed
}

// gradeSpend grades spend against one limit. A non-positive limit means
// unlimited.
func gradeSpend(spend, limit, hardStop float64) CreditVerdict {
	if limit <= 0 {
		return CreditOK
	}
	if hardStop <= 0 {
		hardStop = 1.0
	}
	pct := spend / limit
	switch {
	case pct >= hardStop:
		return CreditHardStop
	case pct >= 0.9:
		return CreditCritical
	case pct >= 0.75:
		return CreditWarning
	case pct >= 0.5:
		return CreditCaution
	default:
		return CreditOK
	}
}

var verdictRank = map[CreditVerdict]int{
	CreditOK:       0,
	CreditCaution:  1,
	CreditWarning:  2,
	CreditCritical: 3,
	CreditHardStop: 4,
}

func worseVerdict(a, b CreditVerdict) CreditVerdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}
