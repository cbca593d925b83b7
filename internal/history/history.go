// Package history defines the pluggable outcome-event sink pcron records
// every finished job instance to, independent of the mandatory state store
// in internal/store: a history sink is for offline analytics, and losing it
// never affects scheduling correctness.
package history

import (
	"context"
	"time"
)

// Event is one job instance's completion, as reported to a Sink.
type Event struct {
	JobID      string    `json:"job_id"`
	Queue      string    `json:"queue"`
	OccurredAt time.Time `json:"occurred_at"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	ExitCode   int       `json:"exit_code"`
	Killed     bool      `json:"killed"`
	Ran        bool      `json:"ran"`
}

// Sink is a destination for job-outcome events. Implementations must be
// safe for concurrent use; the engine calls Send from its single main loop
// but a sink may itself fan out to goroutines.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
