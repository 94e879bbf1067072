package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	RoleCustomer       = "customer"
	RoleRepresentative = "representative"
	RoleAdmin          = "admin"
)

type User struct {
	gorm.Model
	Name           string     `gorm:"not null"`
	Surname        string     `gorm:"not null"`
	Email          string     `gorm:"uniqueIndex;not null"`
	Role           string     `gorm:"index;not null;default:customer"`
	IsAvailable    bool       `gorm:"index;default:false"` // Only representatives with true are eligible for matching
	AvailableSince *time.Time // Set when IsAvailable flips to true, nil while busy or offline
	Skills         string     // Comma separated, e.g. "billing,tech"
}

func (u User) IsRepresentative() bool {
	return u.Role == RoleRepresentative
}

func (u User) SkillSet() []string {
	return splitList(u.Skills)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList is the inverse of splitList, used when persisting skill lists.
func JoinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	return strings.Join(clean, ",")
}
