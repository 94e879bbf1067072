package queue

import (
	"context"

	"callcenter/internal/models"
)

// Store is the durable state the engine works on. Multi-step transitions
// (AssignCall, CloseCall) must be atomic inside the implementation.
type Store interface {
	ListWaiting(ctx context.Context) ([]models.QueueEntry, error)
	FindActiveEntry(ctx context.Context, userID uint) (*models.QueueEntry, error)
	CreateEntry(ctx context.Context, entry *models.QueueEntry) error
	UpdateEntryStatus(ctx context.Context, entryID uint, status models.EntryStatus) error
	UpdateEntryPosition(ctx context.Context, entryID uint, position int) error

	FindUser(ctx context.Context, userID uint) (*models.User, error)
	ListAgents(ctx context.Context) ([]models.User, error)
	CountAvailableAgents(ctx context.Context) (int, error)
	FindAvailableAgents(ctx context.Context) ([]models.User, error)
	SetAgentAvailability(ctx context.Context, agentID uint, available bool) error

	// AssignCall creates an active call for the entry's user and agentID,
	// marks the entry connected and the agent unavailable. ErrMatchRace if the
	// entry is no longer waiting or the agent is no longer available.
	AssignCall(ctx context.Context, entryID, agentID uint) (*models.Call, error)
	// CloseCall ends an active call with outcome (completed or missed),
	// closes its connected entry and makes the representative available
	// again. ErrCallNotActive if the call already ended.
	CloseCall(ctx context.Context, callID uint, outcome models.CallStatus, notes string) (*models.Call, error)
	FindCall(ctx context.Context, callID uint) (*models.Call, error)
	FindActiveCallForUser(ctx context.Context, userID uint) (*models.Call, error)
	// ListCalls returns calls newest first; an empty status lists all.
	ListCalls(ctx context.Context, status models.CallStatus) ([]models.Call, error)
	// ListCallsForUser returns the calls userID took part in as customer or
	// representative, newest first.
	ListCallsForUser(ctx context.Context, userID uint) ([]models.Call, error)
}

// Notifier delivers events to connected clients. Implementations should not
// block for long; failures are logged by the Outbox and never retried.
type Notifier interface {
	NotifyPositionUpdate(ctx context.Context, ev PositionChanged) error
	NotifyYourTurn(ctx context.Context, ev YourTurn) error
	NotifyCallAssigned(ctx context.Context, ev CallAssigned) error
	BroadcastQueueUpdate(ctx context.Context, ev QueueBroadcast) error
	NotifyCallEnded(ctx context.Context, ev CallEnded) error
}
