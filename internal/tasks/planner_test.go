package tasks

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcenter/internal/queue"
)

type blockingSweeper struct {
	calls   atomic.Int32
	running atomic.Int32
	maxSeen atomic.Int32
	release chan struct{}
}

func (b *blockingSweeper) Sweep(ctx context.Context) (queue.SweepResult, error) {
	b.calls.Add(1)
	n := b.running.Add(1)
	defer b.running.Add(-1)
	if n > b.maxSeen.Load() {
		b.maxSeen.Store(n)
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
		}
	}
	return queue.SweepResult{}, nil
}

type denyLocker struct{ asked atomic.Int32 }

func (d *denyLocker) Acquire(context.Context) (func(), bool, error) {
	d.asked.Add(1)
	return nil, false, nil
}

func TestTriggerSkipsWhileSweepRuns(t *testing.T) {
	sw := &blockingSweeper{release: make(chan struct{})}
	s, err := NewSweepScheduler(sw, SchedulerOptions{Interval: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Trigger()
	require.Eventually(t, func() bool { return sw.running.Load() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		s.Trigger()
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), sw.calls.Load())
	close(sw.release)
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, int32(1), sw.maxSeen.Load())
}

func TestTriggerIsRateLimited(t *testing.T) {
	sw := &blockingSweeper{}
	s, err := NewSweepScheduler(sw, SchedulerOptions{Interval: time.Hour, TriggerRate: 0.001, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Trigger()
	require.Eventually(t, func() bool { return sw.calls.Load() == 1 }, time.Second, time.Millisecond)
	s.Trigger()
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestIntervalTicksSweep(t *testing.T) {
	sw := &blockingSweeper{}
	s, err := NewSweepScheduler(sw, SchedulerOptions{Interval: time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	s.Trigger()
	after := sw.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, sw.calls.Load())
}

func TestLeaseHeldElsewhereSkipsSweep(t *testing.T) {
	sw := &blockingSweeper{}
	lock := &denyLocker{}
	s, err := NewSweepScheduler(sw, SchedulerOptions{Interval: time.Hour, Locker: lock, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.RunNow()
	assert.Equal(t, int32(1), lock.asked.Load())
	assert.Zero(t, sw.calls.Load())
	require.NoError(t, s.Stop(context.Background()))
}

func TestRedisLease(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "callcenter:test:lease"
	require.NoError(t, client.Del(ctx, key).Err())
	a := NewRedisLease(client, key, 5*time.Second)
	b := NewRedisLease(client, key, 5*time.Second)

	release, ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	releaseB, ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}
