// Package mock provides a scripted model provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/warden/provider"
)

const defaultResponse = "Acknowledged. Nothing further to do."

// Turn is one scripted model response: either a full Response or an error.
type Turn struct {
	Response *provider.Response
	Err      error
}

// Provider implements provider.Provider with a scripted queue of turns.
// After the script is exhausted it returns a plain text response, which the
// agent loop treats as a natural final answer.
type Provider struct {
	mu    sync.Mutex
	turns []Turn
	calls int
}

// New creates a Provider that returns the given text responses in order.
func New(responses ...string) *Provider {
	p := &Provider{}
	for _, r := range responses {
		p.turns = append(p.turns, Turn{Response: &provider.Response{Content: r}})
	}
	return p
}

// NewScripted creates a Provider from explicit turns, allowing tool calls
// and errors to be scripted.
func NewScripted(turns ...Turn) *Provider {
	return &Provider{turns: turns}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "mock" }

// Calls reports how many times Chat has been invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Chat returns the next scripted turn.
func (p *Provider) Chat(_ context.Context, _ []provider.Message, _ []provider.ToolDef) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.turns) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	t := p.turns[0]
	p.turns = p.turns[1:]
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Response, nil
}

// ToolCallTurn builds a turn containing a single tool invocation.
func ToolCallTurn(name string, input map[string]any) Turn {
	return Turn{Response: &provider.Response{
		ToolCalls: []provider.ToolCall{{ID: "call_" + name, Name: name, Input: input}},
	}}
}
