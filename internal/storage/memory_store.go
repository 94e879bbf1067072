package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"callcenter/internal/models"
	"callcenter/internal/queue"
)

// MemoryStore is an in-process queue.Store for tests and STORAGE_DRIVER=memory.
// It keeps the same conditional-update semantics as GormStore.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[uint]models.User
	entries map[uint]models.QueueEntry
	calls   map[uint]models.Call
	nextID  uint
	now     func() time.Time
}

var _ queue.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uint]models.User),
		entries: make(map[uint]models.QueueEntry),
		calls:   make(map[uint]models.Call),
		now:     time.Now,
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) stamp(m *gorm.Model) {
	now := s.now()
	if m.ID == 0 {
		m.ID = s.id()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// AddUser stores u and returns it with its assigned ID.
func (s *MemoryStore) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	if u.IsAvailable && u.AvailableSince == nil {
		now := s.now()
		u.AvailableSince = &now
	}
	s.stamp(&u.Model)
	s.users[u.ID] = u
	return u
}

// Entries returns every entry ever created, ordered by ID.
func (s *MemoryStore) Entries() []models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Calls returns every call, ordered by ID.
func (s *MemoryStore) Calls() []models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Call, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ListWaiting(_ context.Context) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QueueEntry
	for _, e := range s.entries {
		if e.Status == models.EntryWaiting {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) FindActiveEntry(_ context.Context, userID uint) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.QueueEntry
	for _, e := range s.entries {
		if e.UserID == userID && e.IsActive() && (found == nil || e.ID > found.ID) {
			e := e
			found = &e
		}
	}
	if found == nil {
		return nil, queue.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) CreateEntry(_ context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Status == "" {
		entry.Status = models.EntryWaiting
	}
	s.stamp(&entry.Model)
	s.entries[entry.ID] = *entry
	return nil
}

func (s *MemoryStore) UpdateEntryStatus(_ context.Context, entryID uint, status models.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || !e.IsActive() {
		return queue.ErrStaleEntry
	}
	e.Status = status
	s.stamp(&e.Model)
	s.entries[entryID] = e
	return nil
}

func (s *MemoryStore) UpdateEntryPosition(_ context.Context, entryID uint, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return queue.ErrNotFound
	}
	e.Position = position
	s.stamp(&e.Model)
	s.entries[entryID] = e
	return nil
}

func (s *MemoryStore) FindUser(_ context.Context, userID uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) agents(onlyAvailable bool) []models.User {
	var out []models.User
	for _, u := range s.users {
		if u.IsRepresentative() && (!onlyAvailable || u.IsAvailable) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents(false), nil
}

func (s *MemoryStore) CountAvailableAgents(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents(true)), nil
}

func (s *MemoryStore) FindAvailableAgents(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents(true), nil
}

func (s *MemoryStore) SetAgentAvailability(_ context.Context, agentID uint, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[agentID]
	if !ok || !u.IsRepresentative() {
		return queue.ErrNotFound
	}
	s.setAvailable(&u, available)
	return nil
}

func (s *MemoryStore) setAvailable(u *models.User, available bool) {
	u.IsAvailable = available
	u.AvailableSince = nil
	if available {
		now := s.now()
		u.AvailableSince = &now
	}
	s.stamp(&u.Model)
	s.users[u.ID] = *u
}

func (s *MemoryStore) AssignCall(_ context.Context, entryID, agentID uint) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, queue.ErrNotFound
	}
	agent, ok := s.users[agentID]
	if e.Status != models.EntryWaiting || !ok || !agent.IsRepresentative() || !agent.IsAvailable {
		return nil, queue.ErrMatchRace
	}

	e.Status = models.EntryConnected
	s.stamp(&e.Model)
	s.entries[e.ID] = e
	s.setAvailable(&agent, false)

	call := models.Call{
		CustomerID:       e.UserID,
		RepresentativeID: agentID,
		QueueEntryID:     e.ID,
		Status:           models.CallActive,
		StartTime:        s.now(),
	}
	s.stamp(&call.Model)
	s.calls[call.ID] = call
	return &call, nil
}

func (s *MemoryStore) CloseCall(_ context.Context, callID uint, outcome models.CallStatus, notes string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, queue.ErrNotFound
	}
	if !call.IsActive() {
		return nil, queue.ErrCallNotActive
	}
	now := s.now()
	call.Status = outcome
	call.EndTime = &now
	call.Notes = notes
	s.stamp(&call.Model)
	s.calls[call.ID] = call

	if e, ok := s.entries[call.QueueEntryID]; ok && e.Status == models.EntryConnected {
		e.Status = outcome.EntryOutcome()
		s.stamp(&e.Model)
		s.entries[e.ID] = e
	}
	if agent, ok := s.users[call.RepresentativeID]; ok {
		s.setAvailable(&agent, true)
	}
	return &call, nil
}

func (s *MemoryStore) FindCall(_ context.Context, callID uint) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return &call, nil
}

func (s *MemoryStore) FindActiveCallForUser(_ context.Context, userID uint) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Call
	for _, c := range s.calls {
		if c.IsActive() && (c.CustomerID == userID || c.RepresentativeID == userID) && (found == nil || c.ID > found.ID) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return nil, queue.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) listCalls(keep func(models.Call) bool) []models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Call{}
	for _, c := range s.calls {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) ListCalls(_ context.Context, status models.CallStatus) ([]models.Call, error) {
	return s.listCalls(func(c models.Call) bool { return status == "" || c.Status == status }), nil
}

func (s *MemoryStore) ListCallsForUser(_ context.Context, userID uint) ([]models.Call, error) {
	return s.listCalls(func(c models.Call) bool { return c.CustomerID == userID || c.RepresentativeID == userID }), nil
}
