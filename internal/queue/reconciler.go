package queue

import (
	"context"
	"fmt"

	"callcenter/internal/metrics"
	"callcenter/internal/models"
)

// Reconciler renumbers waiting entries into a dense 1..N sequence. Callers
// must hold the Service gate.
type Reconciler struct {
	store     Store
	ranker    Ranker
	estimator Estimator
}

func NewReconciler(store Store, ranker Ranker, estimator Estimator) *Reconciler {
	if ranker == nil {
		ranker = FIFORanker{}
	}
	return &Reconciler{store: store, ranker: ranker, estimator: estimator}
}

// Ranked returns the waiting entries in service order.
func (r *Reconciler) Ranked(ctx context.Context) ([]models.QueueEntry, error) {
	entries, err := r.store.ListWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	r.ranker.Rank(entries)
	return entries, nil
}

// Reconcile persists every position that differs from its ranked ordinal
// and returns one PositionChanged per changed entry, in rank order.
func (r *Reconciler) Reconcile(ctx context.Context) ([]Event, error) {
	return r.reconcile(ctx, -1)
}

// RefreshEstimates behaves like Reconcile but also reports entries whose
// estimate moved because the agent count changed from previousAgents.
func (r *Reconciler) RefreshEstimates(ctx context.Context, previousAgents int) ([]Event, error) {
	return r.reconcile(ctx, previousAgents)
}

func (r *Reconciler) reconcile(ctx context.Context, previousAgents int) ([]Event, error) {
	entries, err := r.Ranked(ctx)
	if err != nil {
		return nil, err
	}
	metrics.WaitingEntries.Set(float64(len(entries)))
	if len(entries) == 0 {
		return nil, nil
	}
	agents, err := r.store.CountAvailableAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available agents: %w", err)
	}
	metrics.AvailableAgents.Set(float64(agents))

	var events []Event
	for i, entry := range entries {
		position := i + 1
		changed := entry.Position != position
		if changed {
			if err := r.store.UpdateEntryPosition(ctx, entry.ID, position); err != nil {
				return events, fmt.Errorf("update position of entry %d: %w", entry.ID, err)
			}
		}
		minutes, err := r.estimator.Estimate(position, agents)
		if err != nil {
			return events, err
		}
		if !changed {
			if previousAgents < 0 || previousAgents == agents {
				continue
			}
			before, err := r.estimator.Estimate(position, previousAgents)
			if err != nil {
				return events, err
			}
			if before == minutes {
				continue
			}
		}
		events = append(events, PositionChanged{
			Meta:             newMeta(),
			UserID:           entry.UserID,
			EntryID:          entry.ID,
			OldPosition:      entry.Position,
			NewPosition:      position,
			EstimatedMinutes: minutes,
		})
	}
	return events, nil
}
