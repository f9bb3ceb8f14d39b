package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/warden/briefing"
	"github.com/GoCodeAlone/warden/provider"
	"github.com/GoCodeAlone/warden/resilience"
	"github.com/GoCodeAlone/warden/store"
	"github.com/GoCodeAlone/warden/tool"
	"github.com/GoCodeAlone/warden/world"
)

// Notifier receives loop lifecycle events for the SSE stream.
type Notifier func(event string, payload any)

// Deps bundles the shared collaborators every loop invocation uses.
type Deps struct {
	Provider   provider.Provider
	Caller     *resilience.Caller
	Registry   *tool.Registry
	State      *world.State
	Controller *world.Controller
	Builder    *briefing.Builder
	Store      store.Store
	Logger     *slog.Logger
	Notify     Notifier

	MaxIterations     int
	EstimatedCallCost float64
}

// Manager runs at most one loop invocation per team at a time, and persists
// each outcome (transcript, cost, audit) through the store after the loop
// terminates.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	running map[string]*invocation
}

type invocation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager over the given dependencies.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notify == nil {
		deps.Notify = func(string, any) {}
	}
	return &Manager{
		deps:    deps,
		running: make(map[string]*invocation),
	}
}

// SetNotify replaces the lifecycle event callback. Used when the consumer
// (the SSE hub) is constructed after the Manager.
func (m *Manager) SetNotify(fn Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = func(string, any) {}
	}
	m.deps.Notify = fn
}

// notify reads the callback under the lock so SetNotify can race running
// loops safely.
func (m *Manager) notify(event string, payload any) {
	m.mu.Lock()
	fn := m.deps.Notify
	m.mu.Unlock()
	fn(event, payload)
}

// Running returns the IDs of teams with an active loop.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	teams := make([]string, 0, len(m.running))
	for id := range m.running {
		teams = append(teams, id)
	}
	return teams
}

// IsRunning reports whether the team has an active loop.
func (m *Manager) IsRunning(teamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[teamID]
	return ok
}

// Start launches a loop for the team in the background. At most one
// invocation per team may run at a time.
func (m *Manager) Start(teamID string, assignment Assignment) error {
	loop, err := m.newLoop(teamID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.running[teamID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("team %s already has a running loop", teamID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	inv := &invocation{cancel: cancel, done: make(chan struct{})}
	m.running[teamID] = inv
	m.mu.Unlock()

	m.notify("loop_started", map[string]string{"team_id": teamID})

	go func() {
		defer close(inv.done)
		defer cancel()
		out := loop.Run(ctx, assignment)
		m.finish(teamID, out)
	}()
	return nil
}

// Stop cancels the team's running loop, if any. The loop observes the
// cancellation at its next iteration boundary, so the current tool call
// always completes.
func (m *Manager) Stop(teamID string) error {
	m.mu.Lock()
	inv, ok := m.running[teamID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("team %s has no running loop", teamID)
	}
	inv.cancel()
	<-inv.done
	return nil
}

// Execute runs a loop synchronously, bounded by ceiling wall-clock time.
func (m *Manager) Execute(ctx context.Context, teamID string, assignment Assignment, ceiling time.Duration) (*Outcome, error) {
	loop, err := m.newLoop(teamID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.running[teamID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("team %s already has a running loop", teamID)
	}
	runCtx, cancel := context.WithTimeout(ctx, ceiling)
	inv := &invocation{cancel: cancel, done: make(chan struct{})}
	m.running[teamID] = inv
	m.mu.Unlock()

	defer cancel()
	m.notify("loop_started", map[string]string{"team_id": teamID})

	out := loop.Run(runCtx, assignment)
	close(inv.done)
	m.finish(teamID, out)
	return out, nil
}

func (m *Manager) newLoop(teamID string) (*Loop, error) {
	d := m.deps
	return NewLoop(Config{
		TeamID:            teamID,
		Provider:          d.Provider,
		Caller:            d.Caller,
		Registry:          d.Registry,
		State:             d.State,
		Controller:        d.Controller,
		Builder:           d.Builder,
		Logger:            d.Logger,
		MaxIterations:     d.MaxIterations,
		EstimatedCallCost: d.EstimatedCallCost,
	})
}

// finish clears the running slot, persists the outcome, and emits events.
func (m *Manager) finish(teamID string, out *Outcome) {
	m.mu.Lock()
	delete(m.running, teamID)
	m.mu.Unlock()

	m.deps.State.AppendActivity(teamID, "",
		fmt.Sprintf("loop finished: %s (%d iteration(s), $%.4f)", out.State, out.Iterations, out.CostUSD),
		"loop", string(out.State))
	m.persist(out)
	m.notify("loop_finished", out)
}

// persist writes the transcript, a cost record, and an audit event. Loop
// outcomes are already final; persistence failures are logged, not raised.
func (m *Manager) persist(out *Outcome) {
	if m.deps.Store == nil {
		return
	}
	log := m.deps.Logger.With(slog.String("team", out.TeamID))
	id := uuid.NewString()
	stamp := out.EndedAt.Format(time.RFC3339Nano)

	transcript, err := json.Marshal(out)
	if err != nil {
		log.Error("marshal transcript", slog.Any("err", err))
		return
	}
	m.put(log, store.Record{
		Partition: store.PartitionTranscript,
		Key:       out.TeamID + "/" + stamp + "/" + id,
		Payload:   transcript,
	})

	cost, _ := json.Marshal(map[string]any{
		"team_id":    out.TeamID,
		"cost_usd":   out.CostUSD,
		"iterations": out.Iterations,
		"ended_at":   out.EndedAt,
	})
	m.put(log, store.Record{
		Partition: store.PartitionCost,
		Key:       out.TeamID + "/" + stamp + "/" + id,
		Payload:   cost,
	})

	audit, _ := json.Marshal(map[string]any{
		"team_id": out.TeamID,
		"state":   out.State,
		"reason":  out.Reason,
	})
	m.put(log, store.Record{
		Partition: store.PartitionAudit,
		Key:       out.TeamID + "/" + stamp + "/" + id,
		Payload:   audit,
	})
}

func (m *Manager) put(log *slog.Logger, rec store.Record) {
	if err := m.deps.Store.Put(rec); err != nil {
		log.Error("persist record", slog.String("partition", rec.Partition), slog.Any("err", err))
	}
}
