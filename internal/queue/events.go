package queue

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket event names.
const (
	EventPositionUpdate = "position_update"
	EventYourTurn       = "your_turn"
	EventCallAssigned   = "call_assigned"
	EventQueueUpdate    = "queue_update"
	EventCallEnded      = "call_ended"
)

// Event is one of PositionChanged, YourTurn, CallAssigned, QueueBroadcast or CallEnded.
type Event interface {
	Name() string
	isEvent()
}

// Meta is shared by every event.
type Meta struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newMeta() Meta {
	return Meta{EventID: uuid.NewString(), OccurredAt: time.Now()}
}

// PositionChanged is addressed to the entry's user. OldPosition is 0 for a fresh join.
type PositionChanged struct {
	Meta
	UserID           uint `json:"user_id"`
	EntryID          uint `json:"entry_id"`
	OldPosition      int  `json:"old_position"`
	NewPosition      int  `json:"position"`
	EstimatedMinutes int  `json:"estimated_wait_time"`
}

// YourTurn tells a customer they were matched.
type YourTurn struct {
	Meta
	UserID  uint   `json:"user_id"`
	CallID  uint   `json:"call_id"`
	AgentID uint   `json:"representative_id"`
	Message string `json:"message"`
}

// CallSummary is the part of a call a representative needs when it is assigned.
type CallSummary struct {
	CallID        uint      `json:"call_id"`
	CustomerID    uint      `json:"customer_id"`
	EntryID       uint      `json:"entry_id"`
	IsCallback    bool      `json:"is_callback"`
	CallbackPhone string    `json:"callback_phone,omitempty"`
	StartTime     time.Time `json:"start_time"`
}

// CallAssigned is addressed to the representative.
type CallAssigned struct {
	Meta
	AgentID uint        `json:"representative_id"`
	Call    CallSummary `json:"call"`
}

// QueueBroadcast goes to every connected client.
type QueueBroadcast struct {
	Meta
	Waiting         int `json:"waiting"`
	AvailableAgents int `json:"available_agents"`
}

// CallEnded is addressed to the customer of a finished call.
type CallEnded struct {
	Meta
	UserID uint   `json:"user_id"`
	CallID uint   `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

func (PositionChanged) Name() string { return EventPositionUpdate }
func (YourTurn) Name() string        { return EventYourTurn }
func (CallAssigned) Name() string    { return EventCallAssigned }
func (QueueBroadcast) Name() string  { return EventQueueUpdate }
func (CallEnded) Name() string       { return EventCallEnded }

func (PositionChanged) isEvent() {}
func (YourTurn) isEvent()        {}
func (CallAssigned) isEvent()    {}
func (QueueBroadcast) isEvent()  {}
func (CallEnded) isEvent()       {}
