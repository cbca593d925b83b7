// Package store persists per-job state across engine restarts: when a job
// last fired, how its last instance ended, and — for crash recovery — the
// PID and start time of an instance that was running when the engine went
// down.
package store

import (
	"context"
	"time"
)

// Record is one job's persisted state.
type Record struct {
	JobID string

	LastScheduled time.Time
	HasLastSched  bool

	LastEndTime time.Time
	LastExit    int
	LastKilled  bool
	HasLastEnd  bool

	// RunningPID/RunningStartedAt mark an instance the engine believed
	// was running at last exit. On startup the engine checks whether
	// RunningPID is still alive (RunningStartedAt is not consulted, so a
	// reused PID counts as alive); if not, the instance is reconciled as
	// ended with an unknown exit status.
	RunningPID       int
	RunningStartedAt time.Time
	HasRunningMarker bool
}

// Store is the persistence backend for Records. Implementations must be
// safe for concurrent use by multiple goroutines, though in practice the
// engine's single main loop is the only writer.
type Store interface {
	// EnsureSchema creates whatever tables/indexes the backend needs. It
	// must be idempotent.
	EnsureSchema(ctx context.Context) error

	// Get returns the record for jobID, or ok=false if the job has never
	// been recorded.
	Get(ctx context.Context, jobID string) (rec Record, ok bool, err error)

	// All returns every job currently known to the store, for
	// crash-recovery reconciliation at startup.
	All(ctx context.Context) ([]Record, error)

	// SetLastScheduled records that jobID fired at t.
	SetLastScheduled(ctx context.Context, jobID string, t time.Time) error

	// SetRunning records that an instance of jobID is running as pid,
	// started at startedAt.
	SetRunning(ctx context.Context, jobID string, pid int, startedAt time.Time) error

	// SetEnded clears the running marker and records the instance's
	// outcome.
	SetEnded(ctx context.Context, jobID string, endedAt time.Time, exitCode int, killed bool) error

	// Close releases the backend's resources.
	Close() error
}
