package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callcenter/internal/metrics"
	"callcenter/internal/models"
)

// JoinPolicy decides what Join does for a user that is already queued.
type JoinPolicy string

const (
	RejectDuplicate JoinPolicy = "reject"
	ReturnExisting  JoinPolicy = "return_existing"
)

// Options configures a Service. Zero values fall back to DefaultOptions,
// except MaxPairsPerSweep where 0 is meaningful.
type Options struct {
	JoinPolicy JoinPolicy
	// MaxPairsPerSweep caps pairings per Sweep; 0 loops until nothing pairs.
	MaxPairsPerSweep int
	Estimator        Estimator
	Ranker           Ranker
	Selector         AgentSelector
	Logger           zerolog.Logger
}

// DefaultOptions pairs once per sweep and rejects duplicate joins.
func DefaultOptions() Options {
	return Options{
		JoinPolicy:       RejectDuplicate,
		MaxPairsPerSweep: 1,
		Estimator:        Estimator{AvgHandleMinutes: DefaultAvgHandleMinutes},
		Ranker:           FIFORanker{},
		Selector:         FirstAvailable{},
		Logger:           zerolog.Nop(),
	}
}

// JoinOptions carries optional entry metadata.
type JoinOptions struct {
	IsCallback       bool
	CallbackPhone    string
	Priority         int
	SkillsRequired   []string
	PreferredAgentID *uint
}

// SweepResult lists what one Sweep paired.
type SweepResult struct {
	Pairings []Pairing
	// Raced is set when a concurrent change aborted the last pairing attempt.
	Raced bool
}

// SnapshotItem is one waiting entry as shown on the live monitor.
type SnapshotItem struct {
	EntryID          uint `json:"entry_id"`
	UserID           uint `json:"user_id"`
	Position         int  `json:"position"`
	Priority         int  `json:"priority"`
	WaitingMinutes   int  `json:"waiting_minutes"`
	EstimatedMinutes int  `json:"estimated_wait_time"`
	IsCallback       bool `json:"is_callback"`
}

// Snapshot is the live state of the queue.
type Snapshot struct {
	Waiting         []SnapshotItem `json:"waiting"`
	AvailableAgents int            `json:"available_agents"`
}

// Service is the public face of the queue. Every read-then-write on queue or
// agent state runs under mu; notifications leave through the outbox.
type Service struct {
	mu sync.Mutex

	store      Store
	reconciler *Reconciler
	matcher    *Matcher
	outbox     *Outbox
	estimator  Estimator
	opts       Options
	logger     zerolog.Logger
	now        func() time.Time

	triggerMu sync.RWMutex
	trigger   func()
}

func NewService(store Store, notifier Notifier, opts Options) *Service {
	def := DefaultOptions()
	if opts.JoinPolicy == "" {
		opts.JoinPolicy = def.JoinPolicy
	}
	if opts.MaxPairsPerSweep < 0 {
		opts.MaxPairsPerSweep = def.MaxPairsPerSweep
	}
	if opts.Estimator.AvgHandleMinutes <= 0 {
		opts.Estimator = def.Estimator
	}
	if opts.Ranker == nil {
		opts.Ranker = def.Ranker
	}
	if opts.Selector == nil {
		opts.Selector = def.Selector
	}

	reconciler := NewReconciler(store, opts.Ranker, opts.Estimator)
	return &Service{
		store:      store,
		reconciler: reconciler,
		matcher:    NewMatcher(store, reconciler, opts.Selector),
		outbox:     NewOutbox(notifier, opts.Logger),
		estimator:  opts.Estimator,
		opts:       opts,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Outbox exposes the delivery queue so the caller can run and drain it.
func (s *Service) Outbox() *Outbox {
	return s.outbox
}

// SetSweepTrigger registers the hook called after mutations that may enable a pairing.
func (s *Service) SetSweepTrigger(fn func()) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.trigger = fn
}

func (s *Service) requestSweep() {
	s.triggerMu.RLock()
	fn := s.trigger
	s.triggerMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Joined is what Join reports back. EstimatedMinutes is computed under the
// same lock that placed the entry.
type Joined struct {
	Entry            *models.QueueEntry
	EstimatedMinutes int
	// Existing is set when the user was already queued and nothing was created.
	Existing bool
}

// Join appends userID to the queue. Under RejectDuplicate an existing active
// entry is returned together with ErrAlreadyQueued. A user still on an
// active call gets ErrAlreadyConnected.
func (s *Service) Join(ctx context.Context, userID uint, opts JoinOptions) (Joined, error) {
	s.mu.Lock()
	joined, events, err := s.joinLocked(ctx, userID, opts)
	s.outbox.Enqueue(events...)
	s.mu.Unlock()

	if err != nil || joined.Existing {
		return joined, err
	}
	metrics.JoinsTotal.Inc()
	s.logger.Info().Uint("user_id", userID).Int("position", joined.Entry.Position).Msg("user joined queue")
	s.requestSweep()
	return joined, nil
}

func (s *Service) joinLocked(ctx context.Context, userID uint, opts JoinOptions) (Joined, []Event, error) {
	existing, err := s.store.FindActiveEntry(ctx, userID)
	switch {
	case err == nil:
		joined := Joined{Entry: existing, Existing: true}
		if existing.Status == models.EntryWaiting {
			ev, err := s.positionEvent(ctx, *existing, existing.Position)
			if err != nil {
				return joined, nil, err
			}
			joined.EstimatedMinutes = ev.EstimatedMinutes
		}
		if s.opts.JoinPolicy == ReturnExisting {
			return joined, nil, nil
		}
		return joined, nil, ErrAlreadyQueued
	case !errors.Is(err, ErrNotFound):
		return Joined{}, nil, fmt.Errorf("find active entry for user %d: %w", userID, err)
	}

	if _, err := s.store.FindActiveCallForUser(ctx, userID); err == nil {
		return Joined{}, nil, ErrAlreadyConnected
	} else if !errors.Is(err, ErrNotFound) {
		return Joined{}, nil, fmt.Errorf("find active call for user %d: %w", userID, err)
	}

	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return Joined{}, nil, fmt.Errorf("list waiting entries: %w", err)
	}

	entry := &models.QueueEntry{
		UserID:           userID,
		JoinedAt:         s.now(),
		Position:         len(waiting) + 1,
		Status:           models.EntryWaiting,
		IsCallback:       opts.IsCallback,
		CallbackPhone:    opts.CallbackPhone,
		Priority:         opts.Priority,
		SkillsRequired:   models.JoinList(opts.SkillsRequired),
		PreferredAgentID: opts.PreferredAgentID,
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return Joined{}, nil, fmt.Errorf("create queue entry: %w", err)
	}
	joined := Joined{Entry: entry}

	events, err := s.reconciler.Reconcile(ctx)
	notified := false
	for _, ev := range events {
		if pc, ok := ev.(PositionChanged); ok && pc.EntryID == entry.ID {
			entry.Position = pc.NewPosition
			joined.EstimatedMinutes = pc.EstimatedMinutes
			notified = true
		}
	}
	if err != nil {
		return joined, events, fmt.Errorf("reconcile after join: %w", err)
	}
	if !notified {
		ev, err := s.positionEvent(ctx, *entry, 0)
		if err != nil {
			return joined, events, err
		}
		joined.EstimatedMinutes = ev.EstimatedMinutes
		events = append(events, ev)
	}
	return joined, events, nil
}

func (s *Service) positionEvent(ctx context.Context, entry models.QueueEntry, oldPosition int) (PositionChanged, error) {
	agents, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return PositionChanged{}, fmt.Errorf("count available agents: %w", err)
	}
	minutes, err := s.estimator.Estimate(entry.Position, agents)
	if err != nil {
		s.logger.Error().Err(err).Uint("entry_id", entry.ID).Msg("position invariant violated")
		return PositionChanged{}, err
	}
	return PositionChanged{
		Meta:             newMeta(),
		UserID:           entry.UserID,
		EntryID:          entry.ID,
		OldPosition:      oldPosition,
		NewPosition:      entry.Position,
		EstimatedMinutes: minutes,
	}, nil
}

// Leave cancels a waiting entry. Once a sweep has connected the user the
// entry belongs to the call: Leave changes nothing and returns
// ErrAlreadyConnected.
func (s *Service) Leave(ctx context.Context, userID uint) error {
	s.mu.Lock()
	events, err := s.leaveLocked(ctx, userID)
	s.outbox.Enqueue(events...)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	metrics.LeavesTotal.Inc()
	s.logger.Info().Uint("user_id", userID).Msg("user left queue")
	return nil
}

func (s *Service) leaveLocked(ctx context.Context, userID uint) ([]Event, error) {
	entry, err := s.activeEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.EntryWaiting {
		return nil, ErrAlreadyConnected
	}

	if err := s.store.UpdateEntryStatus(ctx, entry.ID, models.EntryCancelled); err != nil {
		if errors.Is(err, ErrStaleEntry) {
			return nil, ErrNotQueued
		}
		return nil, fmt.Errorf("update entry %d status: %w", entry.ID, err)
	}

	events, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return events, fmt.Errorf("reconcile after leave: %w", err)
	}
	return events, nil
}

func (s *Service) activeEntry(ctx context.Context, userID uint) (*models.QueueEntry, error) {
	entry, err := s.store.FindActiveEntry(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotQueued
	}
	if err != nil {
		return nil, fmt.Errorf("find active entry for user %d: %w", userID, err)
	}
	return entry, nil
}

// Position is the 1-based waiting position; 0 once the user is connected.
func (s *Service) Position(ctx context.Context, userID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.activeEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if entry.Status == models.EntryConnected {
		return 0, nil
	}
	return entry.Position, nil
}

// EstimatedWait returns minutes until userID is served. ErrNotQueued is
// surfaced for absent users rather than defaulting to zero.
func (s *Service) EstimatedWait(ctx context.Context, userID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.activeEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if entry.Status == models.EntryConnected {
		return 0, nil
	}
	agents, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("count available agents: %w", err)
	}
	minutes, err := s.estimator.Estimate(entry.Position, agents)
	if err != nil {
		s.logger.Error().Err(err).Uint("entry_id", entry.ID).Msg("position invariant violated")
		return 0, err
	}
	return minutes, nil
}

// Sweep runs the matcher under the gate. A race with a concurrent mutation
// ends the sweep quietly; the next tick retries.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	s.mu.Lock()
	result, events, err := s.sweepLocked(ctx)
	s.outbox.Enqueue(events...)
	s.mu.Unlock()
	metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.SweepsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	case result.Raced:
		metrics.SweepsTotal.WithLabelValues(metrics.OutcomeRace).Inc()
	case len(result.Pairings) > 0:
		metrics.SweepsTotal.WithLabelValues(metrics.OutcomeMatched).Inc()
	default:
		metrics.SweepsTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
	}
	return result, err
}

func (s *Service) sweepLocked(ctx context.Context) (SweepResult, []Event, error) {
	var (
		result SweepResult
		events []Event
	)
	for s.opts.MaxPairsPerSweep == 0 || len(result.Pairings) < s.opts.MaxPairsPerSweep {
		if err := ctx.Err(); err != nil {
			return result, events, err
		}
		pairing, evs, err := s.matcher.MatchOnce(ctx)
		events = append(events, evs...)
		if pairing != nil {
			result.Pairings = append(result.Pairings, *pairing)
			metrics.MatchesTotal.Inc()
			s.logger.Info().
				Uint("user_id", pairing.Entry.UserID).
				Uint("agent_id", pairing.Agent.ID).
				Uint("call_id", pairing.Call.ID).
				Msg("customer matched to representative")
		}
		if errors.Is(err, ErrMatchRace) {
			result.Raced = true
			s.logger.Warn().Err(err).Msg("pairing aborted, retrying next sweep")
			return result, events, nil
		}
		if err != nil {
			return result, events, err
		}
		if pairing == nil {
			break
		}
	}
	return result, events, nil
}

// SetAgentAvailability flips a representative's availability. An agent with
// an active call cannot be made available.
func (s *Service) SetAgentAvailability(ctx context.Context, agentID uint, available bool) (*models.User, error) {
	s.mu.Lock()
	agent, events, err := s.setAvailabilityLocked(ctx, agentID, available)
	s.outbox.Enqueue(events...)
	s.mu.Unlock()

	if err != nil {
		return agent, err
	}
	s.logger.Info().Uint("agent_id", agentID).Bool("available", available).Msg("agent availability changed")
	if available {
		s.requestSweep()
	}
	return agent, nil
}

func (s *Service) setAvailabilityLocked(ctx context.Context, agentID uint, available bool) (*models.User, []Event, error) {
	agent, err := s.store.FindUser(ctx, agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("find agent %d: %w", agentID, err)
	}
	if !agent.IsRepresentative() {
		return nil, nil, ErrNotRepresentative
	}
	if agent.IsAvailable == available {
		return agent, nil, nil
	}
	previous, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("count available agents: %w", err)
	}
	if available {
		_, err := s.store.FindActiveCallForUser(ctx, agentID)
		if err == nil {
			return nil, nil, ErrAgentBusy
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("find active call for agent %d: %w", agentID, err)
		}
	}
	if err := s.store.SetAgentAvailability(ctx, agentID, available); err != nil {
		return nil, nil, fmt.Errorf("set availability of agent %d: %w", agentID, err)
	}
	agent, err = s.store.FindUser(ctx, agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload agent %d: %w", agentID, err)
	}

	events, err := s.estimatesChanged(ctx, previous)
	return agent, events, err
}

// estimatesChanged pushes the ETAs that moved since the agent count was
// previousAgents, then a broadcast.
func (s *Service) estimatesChanged(ctx context.Context, previousAgents int) ([]Event, error) {
	events, err := s.reconciler.RefreshEstimates(ctx, previousAgents)
	if err != nil {
		return events, fmt.Errorf("refresh estimates: %w", err)
	}
	agents, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return events, fmt.Errorf("count available agents: %w", err)
	}
	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return events, fmt.Errorf("list waiting entries: %w", err)
	}
	events = append(events, QueueBroadcast{Meta: newMeta(), Waiting: len(waiting), AvailableAgents: agents})
	return events, nil
}

// EndCall completes an active call. Only its representative or an admin may end it.
func (s *Service) EndCall(ctx context.Context, actor models.User, callID uint, notes string) (*models.Call, error) {
	return s.closeCall(ctx, actor, callID, models.CallCompleted, notes)
}

// MarkCallMissed ends an active call the customer never picked up. The entry
// is cancelled and the representative is released for the next customer.
func (s *Service) MarkCallMissed(ctx context.Context, actor models.User, callID uint, notes string) (*models.Call, error) {
	return s.closeCall(ctx, actor, callID, models.CallMissed, notes)
}

func (s *Service) closeCall(ctx context.Context, actor models.User, callID uint, outcome models.CallStatus, notes string) (*models.Call, error) {
	s.mu.Lock()
	call, events, err := s.closeCallLocked(ctx, actor, callID, outcome, notes)
	s.outbox.Enqueue(events...)
	s.mu.Unlock()

	if err != nil {
		return call, err
	}
	s.logger.Info().
		Uint("call_id", callID).
		Uint("agent_id", call.RepresentativeID).
		Str("status", string(call.Status)).
		Msg("call ended")
	s.requestSweep()
	return call, nil
}

func (s *Service) closeCallLocked(ctx context.Context, actor models.User, callID uint, outcome models.CallStatus, notes string) (*models.Call, []Event, error) {
	call, err := s.store.FindCall(ctx, callID)
	if err != nil {
		return nil, nil, fmt.Errorf("find call %d: %w", callID, err)
	}
	if !call.IsActive() {
		return nil, nil, ErrCallNotActive
	}
	if actor.Role != models.RoleAdmin && actor.ID != call.RepresentativeID {
		return nil, nil, ErrForbidden
	}
	previous, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("count available agents: %w", err)
	}

	call, err = s.store.CloseCall(ctx, callID, outcome, notes)
	if err != nil {
		return nil, nil, fmt.Errorf("close call %d: %w", callID, err)
	}

	reason := string(outcome)
	if outcome == models.CallCompleted && actor.Role == models.RoleAdmin && actor.ID != call.RepresentativeID {
		reason = "ended_by_admin"
	}
	events := []Event{CallEnded{Meta: newMeta(), UserID: call.CustomerID, CallID: call.ID, Reason: reason}}
	more, err := s.estimatesChanged(ctx, previous)
	return call, append(events, more...), err
}

// Snapshot returns waiting entries in service order with their ETAs.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked, err := s.reconciler.Ranked(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	agents, err := s.store.CountAvailableAgents(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count available agents: %w", err)
	}

	now := s.now()
	snap := Snapshot{Waiting: make([]SnapshotItem, 0, len(ranked)), AvailableAgents: agents}
	for _, e := range ranked {
		minutes, err := s.estimator.Estimate(e.Position, agents)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Waiting = append(snap.Waiting, SnapshotItem{
			EntryID:          e.ID,
			UserID:           e.UserID,
			Position:         e.Position,
			Priority:         e.Priority,
			WaitingMinutes:   int(now.Sub(e.JoinedAt).Minutes()),
			EstimatedMinutes: minutes,
			IsCallback:       e.IsCallback,
		})
	}
	return snap, nil
}

// Agents lists every representative.
func (s *Service) Agents(ctx context.Context) ([]models.User, error) {
	return s.store.ListAgents(ctx)
}

// ActiveCall returns the active call where userID is customer or representative.
func (s *Service) ActiveCall(ctx context.Context, userID uint) (*models.Call, error) {
	return s.store.FindActiveCallForUser(ctx, userID)
}

// Calls lists calls with status, newest first; an empty status lists all.
func (s *Service) Calls(ctx context.Context, status models.CallStatus) ([]models.Call, error) {
	if status != "" && !models.ValidCallStatus(status) {
		return nil, ErrInvalidCallStatus
	}
	return s.store.ListCalls(ctx, status)
}

// CallHistory lists the calls userID took part in, newest first.
func (s *Service) CallHistory(ctx context.Context, userID uint) ([]models.Call, error) {
	return s.store.ListCallsForUser(ctx, userID)
}
