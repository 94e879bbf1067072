package queue

import (
	"sort"

	"callcenter/internal/models"
)

// Ranker orders waiting entries; index 0 is served first.
type Ranker interface {
	Rank(entries []models.QueueEntry)
}

// FIFORanker serves entries in join order.
type FIFORanker struct{}

func (FIFORanker) Rank(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return joinedBefore(entries[i], entries[j])
	})
}

// PriorityRanker serves higher Priority first and falls back to join order.
type PriorityRanker struct{}

func (PriorityRanker) Rank(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return joinedBefore(entries[i], entries[j])
	})
}

func joinedBefore(a, b models.QueueEntry) bool {
	if a.JoinedAt.Equal(b.JoinedAt) {
		return a.ID < b.ID
	}
	return a.JoinedAt.Before(b.JoinedAt)
}

// RankerByName maps a config value to a Ranker, defaulting to FIFO.
func RankerByName(name string) Ranker {
	if name == "priority" {
		return PriorityRanker{}
	}
	return FIFORanker{}
}
