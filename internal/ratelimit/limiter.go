package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

// ErrWaitTooLong is returned when the hard wait required to stay under the
// supplier ceilings exceeds the caller-supplied maximum.
var ErrWaitTooLong = errors.New("rate limit wait exceeds maximum")

const (
	// Safety margin added on top of the computed hard wait.
	safetyMargin = time.Second
	// Minimum spacing between consecutive outbound requests.
	minRequestGap = 500 * time.Millisecond
	// Prune the persisted window once per this many recorded requests.
	pruneEvery = 50
)

// WindowStore persists the sliding request window so limits hold across
// process restarts. The Redis client satisfies this directly.
type WindowStore interface {
	RecordRequest(ctx context.Context, at time.Time) error
	CountSince(ctx context.Context, cutoff time.Time) (int, error)
	OldestSince(ctx context.Context, cutoff time.Time) (time.Time, bool, error)
	Prune(ctx context.Context, cutoff time.Time) error
}

// StatsStore persists the wait bookkeeping across restarts. The Redis client
// satisfies this; may be nil, which keeps the stats in-memory only.
type StatsStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

const statsSettingsKey = "ratelimit_stats"

// Stats accumulates wait bookkeeping for status reporting.
type Stats struct {
	WaitCount int           `json:"wait_count"`
	TotalWait time.Duration `json:"total_wait"`
}

// Limiter enforces the supplier's per-minute/per-hour request ceilings and
// smooths issuance with an adaptive delay.
type Limiter struct {
	window       WindowStore
	statsStore   StatsStore
	maxPerMinute int
	maxPerHour   int
	logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	lastRequest time.Time
	recorded    int
	stats       Stats
	statsOnce   sync.Once
}

// New creates a limiter over the given persisted window and stats store.
func New(window WindowStore, stats StatsStore, maxPerMinute, maxPerHour int) *Limiter {
	return &Limiter{
		window:       window,
		statsStore:   stats,
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		logger:       util.GetLogger(),
		now:          time.Now,
		sleep:        sleepWithContext,
	}
}

// CanProceed reports whether both windowed counts are under their ceiling.
func (l *Limiter) CanProceed(ctx context.Context) (bool, error) {
	now := l.now()
	minuteCount, err := l.window.CountSince(ctx, now.Add(-time.Minute))
	if err != nil {
		return false, err
	}
	hourCount, err := l.window.CountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return false, err
	}
	return minuteCount < l.maxPerMinute && hourCount < l.maxPerHour, nil
}

// TimeUntilAllowed returns zero when a request may be issued now, otherwise
// the time until the oldest in-window request falls out of whichever window
// is saturated, plus a one second safety margin. The minute window is
// checked before the hour window.
func (l *Limiter) TimeUntilAllowed(ctx context.Context) (time.Duration, error) {
	now := l.now()

	windows := []struct {
		span time.Duration
		max  int
	}{
		{time.Minute, l.maxPerMinute},
		{time.Hour, l.maxPerHour},
	}

	for _, w := range windows {
		cutoff := now.Add(-w.span)
		count, err := l.window.CountSince(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		if count < w.max {
			continue
		}
		oldest, ok, err := l.window.OldestSince(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		return oldest.Add(w.span).Sub(now) + safetyMargin, nil
	}

	return 0, nil
}

// AdaptiveDelay is advisory smoothing: a step function of the worse of the
// two usage ratios, not an enforcement mechanism.
func (l *Limiter) AdaptiveDelay(ctx context.Context) (time.Duration, error) {
	now := l.now()
	minuteCount, err := l.window.CountSince(ctx, now.Add(-time.Minute))
	if err != nil {
		return 0, err
	}
	hourCount, err := l.window.CountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return 0, err
	}

	usage := float64(minuteCount) / float64(l.maxPerMinute)
	if hourUsage := float64(hourCount) / float64(l.maxPerHour); hourUsage > usage {
		usage = hourUsage
	}

	switch {
	case usage > 0.9:
		return 5 * time.Second, nil
	case usage > 0.8:
		return 3 * time.Second, nil
	case usage > 0.6:
		return 2 * time.Second, nil
	case usage > 0.4:
		return 1500 * time.Millisecond, nil
	default:
		return time.Second, nil
	}
}

// SmartWait is the single call sites use before outbound I/O. It blocks for
// any hard wait first; when none is required it sleeps for the larger of the
// adaptive delay and the remainder of the minimum inter-request gap. A
// maxWait of zero means wait however long is needed.
func (l *Limiter) SmartWait(ctx context.Context, maxWait time.Duration) error {
	hard, err := l.TimeUntilAllowed(ctx)
	if err != nil {
		return err
	}

	var wait time.Duration
	if hard > 0 {
		if maxWait > 0 && hard > maxWait {
			l.logger.Warn("Rate limit wait exceeds caller maximum",
				zap.Duration("required", hard),
				zap.Duration("max", maxWait))
			return ErrWaitTooLong
		}
		wait = hard
	} else {
		adaptive, err := l.AdaptiveDelay(ctx)
		if err != nil {
			return err
		}
		wait = adaptive
		l.mu.Lock()
		if !l.lastRequest.IsZero() {
			if gap := minRequestGap - l.now().Sub(l.lastRequest); gap > wait {
				wait = gap
			}
		}
		l.mu.Unlock()
	}

	if wait <= 0 {
		return nil
	}

	l.loadStats(ctx)
	l.mu.Lock()
	l.stats.WaitCount++
	l.stats.TotalWait += wait
	snapshot := l.stats
	l.mu.Unlock()
	l.persistStats(ctx, snapshot)
	util.RateLimitWaitsTotal.Inc()
	util.RateLimitWaitSeconds.Add(wait.Seconds())

	return l.sleep(ctx, wait)
}

// RecordRequest appends now to the window; called exactly once per outbound
// call. Pruning runs opportunistically to bound write amplification.
func (l *Limiter) RecordRequest(ctx context.Context) error {
	now := l.now()
	if err := l.window.RecordRequest(ctx, now); err != nil {
		return err
	}

	l.mu.Lock()
	l.lastRequest = now
	l.recorded++
	shouldPrune := l.recorded%pruneEvery == 0
	l.mu.Unlock()

	if shouldPrune {
		if err := l.window.Prune(ctx, now.Add(-time.Hour)); err != nil {
			l.logger.Warn("Failed to prune rate-limit window", zap.Error(err))
		}
	}
	return nil
}

// Stats returns a snapshot of the wait bookkeeping, seeded from the stats
// store on first use so counts survive restarts.
func (l *Limiter) Stats(ctx context.Context) Stats {
	l.loadStats(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// loadStats seeds the in-memory counters from the store exactly once.
func (l *Limiter) loadStats(ctx context.Context) {
	l.statsOnce.Do(func() {
		if l.statsStore == nil {
			return
		}
		var persisted Stats
		ok, err := l.statsStore.GetJSON(ctx, statsSettingsKey, &persisted)
		if err != nil {
			l.logger.Warn("Failed to load rate-limit stats", zap.Error(err))
			return
		}
		if ok {
			l.mu.Lock()
			l.stats = persisted
			l.mu.Unlock()
		}
	})
}

func (l *Limiter) persistStats(ctx context.Context, snapshot Stats) {
	if l.statsStore == nil {
		return
	}
	if err := l.statsStore.SetJSON(ctx, statsSettingsKey, snapshot); err != nil {
		l.logger.Warn("Failed to persist rate-limit stats", zap.Error(err))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
