package sync

import (
	"context"
	"fmt"
	"time"
)

const (
	stateSettingsKey = "sync_state"
	leaseName        = "batch_sync"

	// A run whose heartbeat is older than this is considered crashed and is
	// forcibly reset by whichever caller observes it.
	staleAfter = 30 * time.Minute
)

// State is the persisted singleton driving batch resumability. Mutated
// exclusively by the coordinator.
type State struct {
	Running       bool   `json:"in_progress"`
	CurrentOffset int    `json:"current_offset"`
	BatchSize     int    `json:"batch_size"`
	Frequency     string `json:"frequency"`

	// Running counters for the in-flight cycle.
	ProductsUpdated int `json:"products_updated"`
	ProductsSkipped int `json:"products_skipped"`
	NotFoundCount   int `json:"not_found_count"`
	ErrorsCount     int `json:"errors_count"`

	LastSync      time.Time `json:"last_sync"`
	LastBatchTime time.Time `json:"last_batch_time"`

	// Snapshot of the previous completed cycle.
	LastRunUpdated  int `json:"last_run_updated"`
	LastRunSkipped  int `json:"last_run_skipped"`
	LastRunNotFound int `json:"last_run_not_found"`
	LastRunErrors   int `json:"last_run_errors"`
}

// Stale reports whether an in-progress flag has outlived its heartbeat.
func (s *State) Stale(now time.Time) bool {
	return s.Running && now.Sub(s.LastBatchTime) > staleAfter
}

// resetRun snapshots the running counters and returns the state to idle.
func (s *State) resetRun(now time.Time) {
	s.LastRunUpdated = s.ProductsUpdated
	s.LastRunSkipped = s.ProductsSkipped
	s.LastRunNotFound = s.NotFoundCount
	s.LastRunErrors = s.ErrorsCount
	s.ProductsUpdated = 0
	s.ProductsSkipped = 0
	s.NotFoundCount = 0
	s.ErrorsCount = 0
	s.CurrentOffset = 0
	s.Running = false
	s.LastSync = now
}

// Settings is the key-value slice used for state persistence.
type Settings interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// Lease is the mutual-exclusion primitive guarding concurrent triggers. The
// TTL doubles as the stale-lock recovery window.
type Lease interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, name string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, name string) error
}

func loadState(ctx context.Context, settings Settings) (*State, error) {
	var st State
	if _, err := settings.GetJSON(ctx, stateSettingsKey, &st); err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	return &st, nil
}

func saveState(ctx context.Context, settings Settings, st *State) error {
	if err := settings.SetJSON(ctx, stateSettingsKey, st); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}
