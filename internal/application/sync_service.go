package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jobrunner/charttiler/internal/ports/output"
)

// ErrRateLimited is returned when a sync is triggered during the cooldown.
var ErrRateLimited = errors.New("rate limit exceeded")

// DefaultSyncCooldown is the minimum time between triggered syncs.
const DefaultSyncCooldown = 30 * time.Second

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	ChartsAdded     int       `json:"charts_added"`
	ChartsRemoved   int       `json:"charts_removed"`
	ChartsTotal     int       `json:"charts_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
	Joined          bool      `json:"joined,omitempty"` // shared a sync already running
}

// chartMirror is the part of the registry the sync service drives.
type chartMirror interface {
	SyncFromStorage(ctx context.Context) (SyncStats, error)
	Reload(ctx context.Context) error
	SourceCount() int
}

// SyncService keeps the chart mirror in step with remote storage, on a
// schedule and on request. Overlapping requests share one run.
type SyncService struct {
	mirror   chartMirror
	interval time.Duration
	cooldown time.Duration
	metrics  output.MetricsCollector
	logger   *slog.Logger

	runs singleflight.Group

	mu          sync.Mutex
	lastTrigger time.Time
	next        time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSyncService creates a new sync service. A non-positive cooldown uses
// DefaultSyncCooldown.
func NewSyncService(
	mirror chartMirror,
	interval, cooldown time.Duration,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *SyncService {
	if cooldown <= 0 {
		cooldown = DefaultSyncCooldown
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &SyncService{
		mirror:   mirror,
		interval: interval,
		cooldown: cooldown,
		metrics:  metrics,
		logger:   logger,
	}
}

// Interval returns the schedule; zero means on request only.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}

// Start runs the schedule until ctx ends or Stop is called.
func (s *SyncService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	s.logger.Info("starting sync schedule", "interval", s.interval)
	go s.schedule(ctx, done)
}

// Stop ends the schedule and waits for a running scheduled sync.
func (s *SyncService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sync schedule stopped")
}

func (s *SyncService) schedule(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	s.setNext(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled sync failed", "error", err)
			}
			timer.Reset(s.interval)
			s.setNext(time.Now().Add(s.interval))
		}
	}
}

// TriggerSync runs a sync now, or joins the one in progress. Triggers
// closer together than the cooldown fail with ErrRateLimited.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if !s.lastTrigger.IsZero() && time.Since(s.lastTrigger) < s.cooldown {
		s.mu.Unlock()
		return SyncResult{}, ErrRateLimited
	}
	s.lastTrigger = time.Now()
	s.mu.Unlock()

	return s.sync(ctx)
}

// RetryAfter returns how long triggers stay rate limited.
func (s *SyncService) RetryAfter() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastTrigger.IsZero() {
		return 0
	}
	return max(s.cooldown-time.Since(s.lastTrigger), 0)
}

func (s *SyncService) sync(ctx context.Context) (SyncResult, error) {
	v, err, shared := s.runs.Do("mirror", func() (any, error) {
		return s.run(ctx)
	})
	if err != nil {
		return SyncResult{}, err
	}
	result := v.(SyncResult)
	result.Joined = shared
	return result, nil
}

// run mirrors the storage and reloads the charts when files changed.
func (s *SyncService) run(ctx context.Context) (SyncResult, error) {
	stats, err := s.mirror.SyncFromStorage(ctx)
	if err == nil && stats.Changed() {
		err = s.mirror.Reload(ctx)
	}
	s.metrics.IncSyncRuns(err == nil)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{
		ChartsAdded:     stats.Added,
		ChartsRemoved:   stats.Removed,
		ChartsTotal:     s.mirror.SourceCount(),
		SyncedAt:        time.Now(),
		NextScheduledAt: s.nextRun(),
	}
	s.logger.Info("chart mirror synced",
		"added", result.ChartsAdded,
		"removed", result.ChartsRemoved,
		"total", result.ChartsTotal,
	)
	return result, nil
}

func (s *SyncService) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

func (s *SyncService) nextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
