// Package agent runs the bounded observe-act-evaluate loop that drives a
// team's model agent through the tool protocol.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/warden/briefing"
	"github.com/GoCodeAlone/warden/provider"
	"github.com/GoCodeAlone/warden/resilience"
	"github.com/GoCodeAlone/warden/tool"
	"github.com/GoCodeAlone/warden/world"
)

// DefaultMaxIterations bounds a loop invocation.
const DefaultMaxIterations = 6

// defaultEstimatedCallCost is the per-call cost assumed for the credit
// pre-check before actual usage is known.
const defaultEstimatedCallCost = 0.02

// LoopState is a terminal outcome of one loop invocation.
type LoopState string

const (
	// StateCompleted: the agent signalled completion or gave a final answer.
	StateCompleted LoopState = "completed"
	// StateMaxIterations: the assignment did not finish within the iteration
	// budget. This is not an error; the transcript shows what was attempted.
	StateMaxIterations LoopState = "max_iterations_reached"
	// StateFailed: the loop could not proceed (gate denied, model call
	// unrecoverable, or cancellation).
	StateFailed LoopState = "failed"
)

// Config wires one loop instance.
type Config struct {
	TeamID     string
	Provider   provider.Provider
	Caller     *resilience.Caller
	Registry   *tool.Registry
	State      *world.State
	Controller *world.Controller
	Builder    *briefing.Builder
	Logger     *slog.Logger

	MaxIterations int
	// EstimatedCallCost feeds the credit pre-check before each model call.
	EstimatedCallCost float64
}

// Assignment is what a loop invocation is asked to do.
type Assignment struct {
	Instructions string `json:"instructions"`
	TaskID       string `json:"task_id,omitempty"`
}

// TranscriptEntry is one recorded turn, kept in memory and handed to the
// caller at termination for external persistence.
type TranscriptEntry struct {
	Iteration  int                 `json:"iteration"`
	Role       provider.Role       `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCalls  []provider.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	At         time.Time           `json:"at"`
}

// ToolExecution pairs a dispatched call with its result.
type ToolExecution struct {
	Iteration int               `json:"iteration"`
	Call      provider.ToolCall `json:"call"`
	Result    tool.Result       `json:"result"`
}

// Outcome is the terminal report of one loop invocation.
type Outcome struct {
	TeamID     string            `json:"team_id"`
	State      LoopState         `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	Iterations int               `json:"iterations"`
	Transcript []TranscriptEntry `json:"transcript"`
	ToolRuns   []ToolExecution   `json:"tool_runs"`
	CostUSD    float64           `json:"cost_usd"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

// Loop is a single-use agent loop for one (team, assignment) invocation.
type Loop struct {
	cfg Config
}

// NewLoop validates the wiring and returns a runnable loop. Wiring problems
// are configuration errors: fail fast, never retried.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("agent: team id is required")
	}
	if cfg.Provider == nil || cfg.Caller == nil {
		return nil, fmt.Errorf("agent: provider and caller are required")
	}
	if cfg.Registry == nil || cfg.State == nil || cfg.Controller == nil {
		return nil, fmt.Errorf("agent: registry, state, and controller are required")
	}
	if cfg.Builder == nil {
		cfg.Builder = briefing.NewBuilder()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.EstimatedCallCost <= 0 {
		cfg.EstimatedCallCost = defaultEstimatedCallCost
	}
	return &Loop{cfg: cfg}, nil
}

// Run executes the loop to a terminal state. It always returns an Outcome;
// policy rejections and tool failures are absorbed into it, never returned
// as errors.
func (l *Loop) Run(ctx context.Context, assignment Assignment) *Outcome {
	cfg := l.cfg
	out := &Outcome{
		TeamID:    cfg.TeamID,
		StartedAt: time.Now().UTC(),
	}
	log := cfg.Logger.With(slog.String("team", cfg.TeamID))

	messages := []provider.Message{
		{Role: provider.RoleSystem}, // briefing, refreshed each iteration
		{Role: provider.RoleUser, Content: assignment.Instructions},
	}
	out.record(0, messages[1])

	tools := cfg.Registry.Defs()

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		out.Iterations = iter

		// Gate check: once per iteration, before anything else. Cancellation
		// is checked at the same point so in-flight tool dispatches always
		// complete before the loop exits.
		if err := ctx.Err(); err != nil {
			return out.fail(fmt.Sprintf("cancelled: %v", err))
		}
		if gate := cfg.Controller.Check(cfg.TeamID, world.ActorAgent); !gate.Allowed {
			return out.fail(gate.Reason)
		}
		if verdict := cfg.Controller.CheckCreditLimits(cfg.EstimatedCallCost); verdict == world.CreditHardStop {
			return out.fail("budget hard stop: estimated call cost exceeds remaining limit")
		}

		// Fresh briefing from the current world.
		messages[0].Content = cfg.Builder.Build(cfg.TeamID, cfg.State.Snapshot())

		resp, err := l.chat(ctx, messages, tools)
		if err != nil {
			log.Error("model call failed", slog.Int("iteration", iter), slog.Any("err", err))
			return out.fail(fmt.Sprintf("model call failed: %v", err))
		}
		cfg.Controller.RecordSpend(resp.CostUSD)
		out.CostUSD += resp.CostUSD

		assistant := provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		out.record(iter, assistant)

		// A turn with no tool calls is a natural final answer.
		if len(resp.ToolCalls) == 0 {
			out.State = StateCompleted
			out.Reason = resp.Content
			out.EndedAt = time.Now().UTC()
			return out
		}

		done := false
		for _, call := range resp.ToolCalls {
			var result tool.Result
			if done {
				// Bookkeeping only: nothing runs after completion.
				result = tool.Result{Success: false, Message: "skipped: completion already signalled"}
			} else {
				result = cfg.Registry.Dispatch(ctx, call, cfg.TeamID, world.ActorAgent)
				if call.Name == tool.SignalCompletion && result.Success {
					done = true
				}
			}
			out.ToolRuns = append(out.ToolRuns, ToolExecution{Iteration: iter, Call: call, Result: result})

			toolMsg := provider.Message{
				Role:       provider.RoleTool,
				Content:    encodeResult(result),
				ToolCallID: call.ID,
				IsError:    !result.Success,
			}
			messages = append(messages, toolMsg)
			out.record(iter, toolMsg)
		}

		if done {
			out.State = StateCompleted
			out.Reason = "completion signalled"
			out.EndedAt = time.Now().UTC()
			return out
		}
	}

	out.State = StateMaxIterations
	out.Reason = fmt.Sprintf("did not finish within %d iterations; %d tool call(s) attempted",
		cfg.MaxIterations, len(out.ToolRuns))
	out.EndedAt = time.Now().UTC()
	return out
}

// chat invokes the provider through the resilient caller, the only path to
// the model API.
func (l *Loop) chat(ctx context.Context, messages []provider.Message, tools []provider.ToolDef) (*provider.Response, error) {
	var resp *provider.Response
	err := l.cfg.Caller.Do(ctx, func(callCtx context.Context) error {
		r, chatErr := l.cfg.Provider.Chat(callCtx, messages, tools)
		if chatErr != nil {
			return chatErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Outcome) record(iteration int, msg provider.Message) {
	o.Transcript = append(o.Transcript, TranscriptEntry{
		Iteration:  iteration,
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCalls:  msg.ToolCalls,
		ToolCallID: msg.ToolCallID,
		At:         time.Now().UTC(),
	})
}

func (o *Outcome) fail(reason string) *Outcome {
	o.State = StateFailed
	o.Reason = reason
	o.EndedAt = time.Now().UTC()
	return o
}

func encodeResult(r tool.Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"message":%q}`, r.Success, r.Message)
	}
	return string(data)
}
