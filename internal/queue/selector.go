package queue

import "callcenter/internal/models"

// AgentSelector picks the representative for entry out of available agents.
// Returning nil skips the pairing for this sweep.
type AgentSelector interface {
	SelectAgent(entry models.QueueEntry, available []models.User) *models.User
}

// FirstAvailable takes the first agent the store returned.
type FirstAvailable struct{}

func (FirstAvailable) SelectAgent(_ models.QueueEntry, available []models.User) *models.User {
	if len(available) == 0 {
		return nil
	}
	return &available[0]
}

// LongestIdle picks the agent who has been available the longest.
type LongestIdle struct{}

func (LongestIdle) SelectAgent(_ models.QueueEntry, available []models.User) *models.User {
	var oldest *models.User
	for i := range available {
		a := &available[i]
		switch {
		case oldest == nil:
			oldest = a
		case a.AvailableSince == nil:
		case oldest.AvailableSince == nil || a.AvailableSince.Before(*oldest.AvailableSince):
			oldest = a
		}
	}
	return oldest
}

// PreferredAgent honors entry.PreferredAgentID when that agent is available
// and otherwise delegates to Fallback.
type PreferredAgent struct {
	Fallback AgentSelector
}

func (p PreferredAgent) SelectAgent(entry models.QueueEntry, available []models.User) *models.User {
	if entry.PreferredAgentID != nil {
		for i := range available {
			if available[i].ID == *entry.PreferredAgentID {
				return &available[i]
			}
		}
	}
	if p.Fallback == nil {
		return FirstAvailable{}.SelectAgent(entry, available)
	}
	return p.Fallback.SelectAgent(entry, available)
}

// SkillMatch narrows the candidates to agents holding every skill the entry
// requires, then delegates to Next. With no qualified agent it falls back to
// the whole pool so the head of the queue is never starved.
type SkillMatch struct {
	Next AgentSelector
}

func (s SkillMatch) SelectAgent(entry models.QueueEntry, available []models.User) *models.User {
	next := s.Next
	if next == nil {
		next = FirstAvailable{}
	}
	required := entry.RequiredSkills()
	if len(required) == 0 {
		return next.SelectAgent(entry, available)
	}
	var qualified []models.User
	for _, a := range available {
		if hasSkills(a.SkillSet(), required) {
			qualified = append(qualified, a)
		}
	}
	if len(qualified) == 0 {
		return next.SelectAgent(entry, available)
	}
	picked := next.SelectAgent(entry, qualified)
	if picked == nil {
		return nil
	}
	for i := range available {
		if available[i].ID == picked.ID {
			return &available[i]
		}
	}
	return picked
}

func hasSkills(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

// SelectorByName maps a config value to an AgentSelector.
func SelectorByName(name string) AgentSelector {
	switch name {
	case "longest_idle":
		return LongestIdle{}
	case "preferred":
		return PreferredAgent{Fallback: LongestIdle{}}
	case "skills":
		return SkillMatch{Next: LongestIdle{}}
	default:
		return FirstAvailable{}
	}
}
