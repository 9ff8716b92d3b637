package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/logger"
)

// Sweeper runs one full sync sweep
type Sweeper interface {
	SyncPendingPosts(ctx context.Context) ([]Result, error)
}

// Scheduler runs sweeps periodically and on demand
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.SugaredLogger

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	lastRun time.Time
	last    Stats
}

// NewScheduler creates a scheduler. An interval of zero disables the timer;
// sweeps then only run on start and on Trigger.
func NewScheduler(sweeper Sweeper, interval time.Duration, l *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.OrNop(l),
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Run sweeps once immediately, then on every tick or trigger, until ctx is
// done or Stop is called
func (s *Scheduler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-tick:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

// Trigger requests a sweep without waiting for the next tick. Requests made
// while one is already queued are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Last returns the time and summary of the most recent sweep
func (s *Scheduler) Last() (time.Time, Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.last
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	results, err := s.sweeper.SyncPendingPosts(ctx)
	if err != nil {
		s.logger.Errorw("Scheduled sync failed", "error", err)
		return
	}

	stats := Summarize(results)
	stats.Duration = time.Since(start)

	s.mu.Lock()
	s.lastRun = start
	s.last = stats
	s.mu.Unlock()

	if stats.Total > 0 {
		s.logger.Infow("Scheduled sync finished", "synced", stats.Synced, "failed", stats.Failed)
	}
}
