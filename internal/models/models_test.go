package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryStatusHelpers(t *testing.T) {
	cases := map[EntryStatus]struct{ active, terminal bool }{
		EntryWaiting:   {true, false},
		EntryConnected: {true, false},
		EntryCompleted: {false, true},
		EntryCancelled: {false, true},
	}
	for status, want := range cases {
		e := QueueEntry{Status: status}
		assert.Equal(t, want.active, e.IsActive(), status)
		assert.Equal(t, want.terminal, e.IsTerminal(), status)
	}
}

func TestSkillLists(t *testing.T) {
	u := User{Skills: " billing, ,tech "}
	assert.Equal(t, []string{"billing", "tech"}, u.SkillSet())
	assert.Nil(t, QueueEntry{}.RequiredSkills())
	assert.Equal(t, "a,b", JoinList([]string{" a", "", "b "}))
}

func TestCallDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := Call{StartTime: start}
	assert.Zero(t, c.Duration())

	end := start.Add(90 * time.Second)
	c.EndTime = &end
	assert.Equal(t, 90*time.Second, c.Duration())
}

func TestCallStatusHelpers(t *testing.T) {
	assert.True(t, ValidCallStatus(CallMissed))
	assert.False(t, ValidCallStatus("lost"))
	assert.Equal(t, EntryCompleted, CallCompleted.EntryOutcome())
	assert.Equal(t, EntryCancelled, CallMissed.EntryOutcome())
}
