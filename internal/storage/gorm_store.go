package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"callcenter/internal/models"
	"callcenter/internal/queue"
)

// GormStore is the postgres backed queue.Store.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ queue.Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return queue.ErrNotFound
	}
	return err
}

var activeStatuses = []models.EntryStatus{models.EntryWaiting, models.EntryConnected}

func (s *GormStore) ListWaiting(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ?", models.EntryWaiting).
		Order("joined_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) FindActiveEntry(ctx context.Context, userID uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *GormStore) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) UpdateEntryStatus(ctx context.Context, entryID uint, status models.EntryStatus) error {
	res := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("id = ? AND status IN ?", entryID, activeStatuses).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return queue.ErrStaleEntry
	}
	return nil
}

func (s *GormStore) UpdateEntryPosition(ctx context.Context, entryID uint, position int) error {
	return s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("id = ?", entryID).
		Update("position", position).Error
}

func (s *GormStore) FindUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) ListAgents(ctx context.Context) ([]models.User, error) {
	var agents []models.User
	err := s.db.WithContext(ctx).
		Where("role = ?", models.RoleRepresentative).
		Order("id ASC").
		Find(&agents).Error
	return agents, err
}

func (s *GormStore) CountAvailableAgents(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_available = ?", models.RoleRepresentative, true).
		Count(&n).Error
	return int(n), err
}

func (s *GormStore) FindAvailableAgents(ctx context.Context) ([]models.User, error) {
	var agents []models.User
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_available = ?", models.RoleRepresentative, true).
		Order("id ASC").
		Find(&agents).Error
	return agents, err
}

func (s *GormStore) SetAgentAvailability(ctx context.Context, agentID uint, available bool) error {
	updates := map[string]interface{}{"is_available": available, "available_since": nil}
	if available {
		updates["available_since"] = s.now()
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role = ?", agentID, models.RoleRepresentative).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// AssignCall claims the entry and the agent with conditional updates, so a
// second writer in another process sees zero affected rows and gets ErrMatchRace.
func (s *GormStore) AssignCall(ctx context.Context, entryID, agentID uint) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.QueueEntry
		if err := tx.First(&entry, entryID).Error; err != nil {
			return notFound(err)
		}

		res := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", entryID, models.EntryWaiting).
			Update("status", models.EntryConnected)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return queue.ErrMatchRace
		}

		res = tx.Model(&models.User{}).
			Where("id = ? AND role = ? AND is_available = ?", agentID, models.RoleRepresentative, true).
			Updates(map[string]interface{}{"is_available": false, "available_since": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return queue.ErrMatchRace
		}

		call = models.Call{
			CustomerID:       entry.UserID,
			RepresentativeID: agentID,
			QueueEntryID:     entry.ID,
			Status:           models.CallActive,
			StartTime:        s.now(),
		}
		return tx.Create(&call).Error
	})
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *GormStore) CloseCall(ctx context.Context, callID uint, outcome models.CallStatus, notes string) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		res := tx.Model(&models.Call{}).
			Where("id = ? AND status = ?", callID, models.CallActive).
			Updates(map[string]interface{}{"status": outcome, "end_time": now, "notes": notes})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return queue.ErrCallNotActive
		}
		if err := tx.First(&call, callID).Error; err != nil {
			return notFound(err)
		}

		if err := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", call.QueueEntryID, models.EntryConnected).
			Update("status", outcome.EntryOutcome()).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).
			Where("id = ?", call.RepresentativeID).
			Updates(map[string]interface{}{"is_available": true, "available_since": now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("close call %d as %s: %w", callID, outcome, err)
	}
	return &call, nil
}

func (s *GormStore) FindCall(ctx context.Context, callID uint) (*models.Call, error) {
	var call models.Call
	if err := s.db.WithContext(ctx).First(&call, callID).Error; err != nil {
		return nil, notFound(err)
	}
	return &call, nil
}

func (s *GormStore) FindActiveCallForUser(ctx context.Context, userID uint) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).
		Where("status = ? AND (customer_id = ? OR representative_id = ?)", models.CallActive, userID, userID).
		Order("id DESC").
		First(&call).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &call, nil
}

func (s *GormStore) ListCalls(ctx context.Context, status models.CallStatus) ([]models.Call, error) {
	calls := []models.Call{}
	q := s.db.WithContext(ctx).Order("start_time DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&calls).Error
	return calls, err
}

func (s *GormStore) ListCallsForUser(ctx context.Context, userID uint) ([]models.Call, error) {
	calls := []models.Call{}
	err := s.db.WithContext(ctx).
		Where("customer_id = ? OR representative_id = ?", userID, userID).
		Order("start_time DESC, id DESC").
		Find(&calls).Error
	return calls, err
}
