package queue

import (
	"context"
	"errors"
	"fmt"

	"callcenter/internal/models"
)

const yourTurnMessage = "It's your turn! Connecting to representative..."

// Matcher pairs the highest-ranked waiting entry with an available agent.
// Callers must hold the Service gate.
type Matcher struct {
	store      Store
	reconciler *Reconciler
	selector   AgentSelector
}

func NewMatcher(store Store, reconciler *Reconciler, selector AgentSelector) *Matcher {
	if selector == nil {
		selector = FirstAvailable{}
	}
	return &Matcher{store: store, reconciler: reconciler, selector: selector}
}

// Pairing is the outcome of a successful MatchOnce.
type Pairing struct {
	Entry models.QueueEntry
	Agent models.User
	Call  models.Call
}

// MatchOnce makes at most one pairing. A nil Pairing with nil error means
// there was nothing to pair. On ErrMatchRace nothing was changed.
func (m *Matcher) MatchOnce(ctx context.Context) (*Pairing, []Event, error) {
	agents, err := m.store.FindAvailableAgents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("find available agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil, nil
	}

	ranked, err := m.reconciler.Ranked(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(ranked) == 0 {
		return nil, nil, nil
	}
	next := ranked[0]

	agent := m.selector.SelectAgent(next, agents)
	if agent == nil {
		return nil, nil, nil
	}

	call, err := m.store.AssignCall(ctx, next.ID, agent.ID)
	if err != nil {
		if errors.Is(err, ErrMatchRace) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("assign entry %d to agent %d: %w", next.ID, agent.ID, err)
	}

	events := []Event{
		YourTurn{
			Meta:    newMeta(),
			UserID:  next.UserID,
			CallID:  call.ID,
			AgentID: agent.ID,
			Message: yourTurnMessage,
		},
		CallAssigned{
			Meta:    newMeta(),
			AgentID: agent.ID,
			Call: CallSummary{
				CallID:        call.ID,
				CustomerID:    next.UserID,
				EntryID:       next.ID,
				IsCallback:    next.IsCallback,
				CallbackPhone: next.CallbackPhone,
				StartTime:     call.StartTime,
			},
		},
		QueueBroadcast{
			Meta:            newMeta(),
			Waiting:         len(ranked) - 1,
			AvailableAgents: len(agents) - 1,
		},
	}

	shifted, err := m.reconciler.Reconcile(ctx)
	events = append(events, shifted...)

	next.Status = models.EntryConnected
	pairing := &Pairing{Entry: next, Agent: *agent, Call: *call}
	if err != nil {
		return pairing, events, fmt.Errorf("reconcile after match: %w", err)
	}
	return pairing, events, nil
}
