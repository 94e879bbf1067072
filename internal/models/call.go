package models

import (
	"time"

	"gorm.io/gorm"
)

type CallStatus string

const (
	CallActive    CallStatus = "active"
	CallCompleted CallStatus = "completed"
	CallMissed    CallStatus = "missed"
	CallCancelled CallStatus = "cancelled"
)

// Call links a matched customer with the representative serving them.
type Call struct {
	gorm.Model
	CustomerID       uint       `gorm:"index;not null"`
	Customer         User       `gorm:"foreignKey:CustomerID"`
	RepresentativeID uint       `gorm:"index;not null"`
	Representative   User       `gorm:"foreignKey:RepresentativeID"`
	QueueEntryID     uint       `gorm:"index"`
	Status           CallStatus `gorm:"index;not null;default:active"`
	StartTime        time.Time  `gorm:"not null"`
	EndTime          *time.Time
	Notes            string `gorm:"type:text"`
}

// ValidCallStatus reports whether s names a known status.
func ValidCallStatus(s CallStatus) bool {
	switch s {
	case CallActive, CallCompleted, CallMissed, CallCancelled:
		return true
	}
	return false
}

// EntryOutcome is the status a connected entry takes when its call ends.
func (s CallStatus) EntryOutcome() EntryStatus {
	if s == CallCompleted {
		return EntryCompleted
	}
	return EntryCancelled
}

func (c Call) IsActive() bool {
	return c.Status == CallActive
}

// Duration returns zero while the call is still running.
func (c Call) Duration() time.Duration {
	if c.EndTime == nil {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}
