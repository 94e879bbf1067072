package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"callcenter/internal/metrics"
	"callcenter/internal/queue"
)

// Sweeper is the part of queue.Service the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (queue.SweepResult, error)
}

// Locker guards a sweep across instances. ok=false means another instance
// holds the lease and this run should be skipped.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// SchedulerOptions configures a SweepScheduler.
type SchedulerOptions struct {
	Interval time.Duration
	// TriggerRate limits event driven sweeps per second; 0 means unlimited.
	TriggerRate float64
	// SweepTimeout bounds one sweep run.
	SweepTimeout time.Duration
	Locker       Locker
	Logger       zerolog.Logger
}

// SweepScheduler runs queue sweeps on a fixed interval and on demand. Ticks
// and triggers share one job, so a run never overlaps another.
type SweepScheduler struct {
	cron    *cron.Cron
	job     cron.Job
	sweeper Sweeper
	limiter *rate.Limiter
	locker  Locker
	logger  zerolog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewSweepScheduler(sweeper Sweeper, opts SchedulerOptions) (*SweepScheduler, error) {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = opts.Interval
	}
	limit := rate.Inf
	if opts.TriggerRate > 0 {
		limit = rate.Limit(opts.TriggerRate)
	}

	logger := opts.Logger.With().Str("component", "sweep_scheduler").Logger()
	cronLogger := cron.PrintfLogger(&logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &SweepScheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger)),
		sweeper: sweeper,
		limiter: rate.NewLimiter(limit, 1),
		locker:  opts.Locker,
		logger:  logger,
		timeout: opts.SweepTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(s.sweepOnce))

	if _, err := s.cron.AddJob(fmt.Sprintf("@every %s", opts.Interval), s.job); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule sweep every %s: %w", opts.Interval, err)
	}
	return s, nil
}

// Start begins interval sweeps.
func (s *SweepScheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("sweep scheduler started")
}

// Trigger requests an immediate sweep. It never blocks; requests beyond the
// rate limit, or while a sweep runs, are dropped until the next tick.
func (s *SweepScheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if !s.limiter.Allow() {
		metrics.SweepsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
}

// RunNow runs one sweep synchronously through the shared job.
func (s *SweepScheduler) RunNow() {
	s.job.Run()
}

func (s *SweepScheduler) sweepOnce() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sweep lease unavailable")
			return
		}
		if !ok {
			metrics.SweepsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			s.logger.Debug().Msg("sweep lease held elsewhere")
			return
		}
		defer release()
	}

	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue sweep failed")
		return
	}
	if n := len(result.Pairings); n > 0 {
		s.logger.Debug().Int("pairings", n).Msg("queue sweep finished")
	}
}

// Stop halts ticks and triggers and waits for a running sweep, or for ctx.
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info().Msg("sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("stop sweep scheduler: %w", ctx.Err())
	}
}
