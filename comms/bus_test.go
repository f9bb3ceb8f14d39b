package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// collect subscribes teamID and records every delivered message.
func collect(bus *InMemoryBus, teamID string) (*[]*Message, func()) {
	var mu sync.Mutex
	var got []*Message
	unsub := bus.Subscribe(teamID, func(_ context.Context, m *Message) error {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		return nil
	})
	return &got, unsub
}

func TestBus_DirectDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	opsGot, _ := collect(bus, "ops")
	researchGot, _ := collect(bus, "research")

	err := bus.Publish(context.Background(), &Message{
		Type: TypeDirect, From: "research", To: "ops", Content: "handoff ready",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(*opsGot) != 1 {
		t.Errorf("ops received %d, want 1", len(*opsGot))
	}
	if len(*researchGot) != 0 {
		t.Errorf("research received %d, want 0", len(*researchGot))
	}
}

func TestBus_BroadcastSkipsSender(t *testing.T) {
	bus := NewInMemoryBus()
	opsGot, _ := collect(bus, "ops")
	researchGot, _ := collect(bus, "research")

	err := bus.Publish(context.Background(), &Message{
		Type: TypeBroadcast, From: "ops", Content: "standup",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(*opsGot) != 0 {
		t.Error("sender received its own broadcast")
	}
	if len(*researchGot) != 1 {
		t.Errorf("research received %d, want 1", len(*researchGot))
	}
}

func TestBus_PublishFillsIDAndTimestamp(t *testing.T) {
	bus := NewInMemoryBus()
	msg := &Message{Type: TypeDirect, From: "a", To: "b"}
	if err := bus.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Errorf("autofill missing: id=%q ts=%v", msg.ID, msg.Timestamp)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	got, unsub := collect(bus, "ops")
	unsub()

	bus.Publish(context.Background(), &Message{Type: TypeDirect, To: "ops"}) //nolint:errcheck
	if len(*got) != 0 {
		t.Errorf("received %d after unsubscribe", len(*got))
	}
}

func TestBus_HandlerErrorSurfaces(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Subscribe("ops", func(context.Context, *Message) error {
		return errors.New("handler broke")
	})

	err := bus.Publish(context.Background(), &Message{Type: TypeDirect, To: "ops"})
	if err == nil {
		t.Fatal("expected handler error to surface")
	}
}

func TestBus_HistoryVisibility(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	bus.Publish(ctx, &Message{Type: TypeDirect, From: "ops", To: "research", Content: "one"}) //nolint:errcheck
	bus.Publish(ctx, &Message{Type: TypeDirect, From: "research", To: "ops", Content: "two"}) //nolint:errcheck
	bus.Publish(ctx, &Message{Type: TypeBroadcast, From: "planning", Content: "three"})       //nolint:errcheck
	bus.Publish(ctx, &Message{Type: TypeDirect, From: "planning", To: "finance", Content: "four"}) //nolint:errcheck

	// ops sees its own direct traffic and all broadcasts.
	msgs, err := bus.History("ops", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("ops sees %d messages, want 3", len(msgs))
	}
	// Chronological order.
	if msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Errorf("order wrong: %q ... %q", msgs[0].Content, msgs[2].Content)
	}

	// Empty teamID sees everything.
	all, _ := bus.History("", 0)
	if len(all) != 4 {
		t.Errorf("unscoped history = %d, want 4", len(all))
	}

	// Limit keeps the most recent.
	last, _ := bus.History("", 2)
	if len(last) != 2 || last[1].Content != "four" {
		t.Errorf("limited history wrong: %+v", last)
	}
}

func TestBus_HistoryCapEvictsOldest(t *testing.T) {
	bus := NewInMemoryBus()
	bus.maxHist = 10
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		bus.Publish(ctx, &Message{Type: TypeDirect, To: "ops", Content: fmt.Sprintf("m%d", i)}) //nolint:errcheck
	}
	msgs, _ := bus.History("", 0)
	if len(msgs) != 10 {
		t.Fatalf("history = %d, want 10", len(msgs))
	}
	if msgs[0].Content != "m15" {
		t.Errorf("oldest kept = %q, want m15", msgs[0].Content)
	}
}
