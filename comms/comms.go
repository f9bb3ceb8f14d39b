// Package comms provides the in-process message bus between teams and the
// owner surface.
package comms

import (
	"context"
	"time"
)

// MessageType identifies the kind of message.
type MessageType string

const (
	TypeDirect    MessageType = "direct"    // point-to-point, team to team
	TypeBroadcast MessageType = "broadcast" // sent to every team
	TypeStatus    MessageType = "status"    // progress/status notification
	TypeOwner     MessageType = "owner"     // message surfaced to the owner
)

// Message is a communication unit between teams.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	From      string            `json:"from"` // sender team ID (or "owner")
	To        string            `json:"to"`   // recipient team ID, empty for broadcast
	Subject   string            `json:"subject"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes incoming messages for a team.
type Handler func(ctx context.Context, msg *Message) error

// Bus is the messaging backbone. Teams subscribe to receive messages and
// publish to other teams or to everyone.
type Bus interface {
	// Publish sends a message. Direct messages route on To; broadcasts reach
	// every subscriber.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for messages addressed to the given team.
	// Returns an unsubscribe function.
	Subscribe(teamID string, handler Handler) (unsubscribe func())

	// History returns recent messages visible to the given team, oldest first.
	History(teamID string, limit int) ([]*Message, error)
}
