package scheduler

import (
	"context"
	"sync"
	"time"

	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

// Job is a named recurring task.
type Job func(ctx context.Context) error

type entry struct {
	name     string
	interval time.Duration
	job      Job
	nextRun  time.Time
}

// Scheduler runs registered jobs on fixed intervals. Jobs run one at a
// time per entry; a slow run pushes the next one out rather than
// overlapping it.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	tick    time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a scheduler that checks for due jobs every resolution.
func New(resolution time.Duration) *Scheduler {
	if resolution <= 0 {
		resolution = time.Minute
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		tick:    resolution,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// Register adds or replaces a named job with the given interval.
func (s *Scheduler) Register(name string, interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &entry{
		name:     name,
		interval: interval,
		job:      job,
		nextRun:  s.now().Add(interval),
	}
	s.logger.Info("Scheduled job",
		zap.String("job", name),
		zap.Duration("interval", interval))
}

// Reschedule changes a job's interval, resetting its next run.
func (s *Scheduler) Reschedule(name string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	e.interval = interval
	e.nextRun = s.now().Add(interval)
	return true
}

// Clear removes a named job.
func (s *Scheduler) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// NextRun reports when the named job will next fire.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.nextRun, true
}

// Run blocks until the context is cancelled, firing due jobs.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !now.Before(e.nextRun) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.logger.Debug("Running scheduled job", zap.String("job", e.name))
		if err := e.job(ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", e.name),
				zap.Error(err))
		}

		s.mu.Lock()
		e.nextRun = s.now().Add(e.interval)
		s.mu.Unlock()
	}
}
