package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcenter/internal/models"
	"callcenter/internal/queue"
)

// testingStore connects to the TEST_DB_* database and truncates it.
func testingStore(t *testing.T) *GormStore {
	t.Helper()
	cfg := DBConfig{
		Host:     os.Getenv("TEST_DB_HOST"),
		Port:     os.Getenv("TEST_DB_PORT"),
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Name:     os.Getenv("TEST_DB_NAME"),
	}
	if cfg.Host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	db, err := ConnectDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Exec("TRUNCATE TABLE calls, queue_entries, users RESTART IDENTITY CASCADE;").Error)
	return NewGormStore(db)
}

func TestGormStoreMatchFlow(t *testing.T) {
	s := testingStore(t)
	ctx := context.Background()

	customer := models.User{Name: "Ann", Surname: "Lee", Email: "ann@example.com", Role: models.RoleCustomer}
	agent := models.User{Name: "Rep", Surname: "One", Email: "rep@example.com", Role: models.RoleRepresentative}
	require.NoError(t, s.db.Create(&customer).Error)
	require.NoError(t, s.db.Create(&agent).Error)
	require.NoError(t, s.SetAgentAvailability(ctx, agent.ID, true))

	entry := &models.QueueEntry{UserID: customer.ID, JoinedAt: s.now(), Position: 1, Status: models.EntryWaiting}
	require.NoError(t, s.CreateEntry(ctx, entry))

	waiting, err := s.ListWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)

	call, err := s.AssignCall(ctx, entry.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallActive, call.Status)

	_, err = s.AssignCall(ctx, entry.ID, agent.ID)
	assert.ErrorIs(t, err, queue.ErrMatchRace)

	n, err := s.CountAvailableAgents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	active, err := s.FindActiveCallForUser(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, call.ID, active.ID)

	done, err := s.CloseCall(ctx, call.ID, models.CallCompleted, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.CallCompleted, done.Status)

	_, err = s.CloseCall(ctx, call.ID, models.CallMissed, "again")
	assert.ErrorIs(t, err, queue.ErrCallNotActive)

	_, err = s.FindActiveEntry(ctx, customer.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound)

	n, err = s.CountAvailableAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := s.ListCallsForUser(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ok", history[0].Notes)

	activeCalls, err := s.ListCalls(ctx, models.CallActive)
	require.NoError(t, err)
	assert.Empty(t, activeCalls)
}

func TestGormStoreStaleStatusUpdate(t *testing.T) {
	s := testingStore(t)
	ctx := context.Background()

	customer := models.User{Name: "Bo", Surname: "Kim", Email: "bo@example.com"}
	require.NoError(t, s.db.Create(&customer).Error)

	entry := &models.QueueEntry{UserID: customer.ID, JoinedAt: s.now(), Position: 1, Status: models.EntryWaiting}
	require.NoError(t, s.CreateEntry(ctx, entry))
	require.NoError(t, s.UpdateEntryStatus(ctx, entry.ID, models.EntryCancelled))
	assert.ErrorIs(t, s.UpdateEntryStatus(ctx, entry.ID, models.EntryCancelled), queue.ErrStaleEntry)
}
