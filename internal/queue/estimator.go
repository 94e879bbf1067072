package queue

import "fmt"

const DefaultAvgHandleMinutes = 5

// Estimator approximates wait time from a queue position.
type Estimator struct {
	AvgHandleMinutes int
}

// Estimate returns minutes until the entry at position is served. With no
// agents available the undivided base is reported.
func (e Estimator) Estimate(position, availableAgents int) (int, error) {
	if position <= 0 {
		return 0, fmt.Errorf("estimate position %d: %w", position, ErrInvalidPosition)
	}
	avg := e.AvgHandleMinutes
	if avg < 0 {
		avg = 0
	}
	base := (position - 1) * avg
	if availableAgents <= 0 {
		return base, nil
	}
	return (base + availableAgents - 1) / availableAgents, nil
}
