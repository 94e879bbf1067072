package models

import (
	"time"

	"gorm.io/gorm"
)

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryConnected EntryStatus = "connected"
	EntryCompleted EntryStatus = "completed"
	EntryCancelled EntryStatus = "cancelled"
)

type QueueEntry struct {
	gorm.Model
	UserID        uint        `gorm:"index;not null"`
	User          User        `gorm:"foreignKey:UserID"`
	JoinedAt      time.Time   `gorm:"index;not null"`                 // Set once at creation
	Position      int         `gorm:"index;not null"`                 // 1-based ordinal among waiting entries
	Status        EntryStatus `gorm:"index;not null;default:waiting"` // waiting | connected | completed | cancelled
	IsCallback    bool        `gorm:"default:false"`
	CallbackPhone string

	// Used only by the priority ranker and the preferred agent selector.
	Priority            int `gorm:"default:0"`
	EstimatedHandleTime *int
	CustomerValue       *int
	SkillsRequired      string
	PreferredAgentID    *uint
}

func (e QueueEntry) IsActive() bool {
	return e.Status == EntryWaiting || e.Status == EntryConnected
}

func (e QueueEntry) IsTerminal() bool {
	return e.Status == EntryCompleted || e.Status == EntryCancelled
}

func (e QueueEntry) RequiredSkills() []string {
	return splitList(e.SkillsRequired)
}
