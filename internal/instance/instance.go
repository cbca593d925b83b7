// Package instance defines the lifecycle of one firing of a job: the
// pending -> ready -> running -> ended state machine, its scheduled and
// actual timestamps, its exit outcome, and its captured output.
package instance

import (
	"sync"
	"time"
)

// State is a point in an instance's lifecycle.
type State string

const (
	// StatePending is assigned when a schedule source fires, and is kept
	// while the instance waits in its queue behind the running occupant.
	StatePending State = "pending"
	// StateReady means the instance has become its queue's running
	// occupant and is about to be spawned. The conflict policy was applied
	// when it was admitted and any condition was checked before it was
	// created; an instance promoted from the queue is not condition-checked
	// again.
	StateReady State = "ready"
	// StateRunning means the supervisor has spawned the job's command.
	StateRunning State = "running"
	// StateEnded is terminal: the command exited, was killed, failed to
	// spawn, or the instance was dropped by conflict policy without ever
	// running.
	StateEnded State = "ended"
)

// ExitStatus records how an instance's command finished, or that it never
// ran at all.
type ExitStatus struct {
	// Ran is false when the instance never ran: it was dropped by conflict
	// policy (the remaining fields are zero) or its command failed to spawn
	// (Err holds the spawn error).
	Ran bool

	ExitCode int
	Killed   bool
	Err      error
}

// Instance is one firing of a job.
type Instance struct {
	JobID string
	Seq   uint64

	ScheduledFire time.Time

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	endedAt    time.Time
	exitStatus ExitStatus
	output     *Buffer
}

// New creates a pending instance for jobID, scheduled to fire at
// scheduledFire, with seq as its per-job sequence number.
func New(jobID string, seq uint64, scheduledFire time.Time, outputCap int) *Instance {
	return &Instance{
		JobID:         jobID,
		Seq:           seq,
		ScheduledFire: scheduledFire,
		state:         StatePending,
		output:        NewBuffer(outputCap),
	}
}

// State returns the instance's current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// MarkReady transitions a pending instance to ready.
func (i *Instance) MarkReady() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateReady
}

// MarkRunning transitions a ready instance to running, recording its actual
// start time.
func (i *Instance) MarkRunning(startedAt time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateRunning
	i.startedAt = startedAt
}

// MarkEnded transitions the instance to ended with the given outcome.
func (i *Instance) MarkEnded(endedAt time.Time, status ExitStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateEnded
	i.endedAt = endedAt
	i.exitStatus = status
}

// StartedAt returns the instance's actual start time, zero if it never ran.
func (i *Instance) StartedAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.startedAt
}

// EndedAt returns the instance's end time, zero if it has not ended.
func (i *Instance) EndedAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.endedAt
}

// ExitStatus returns the instance's outcome. Only meaningful once State is
// StateEnded.
func (i *Instance) ExitStatus() ExitStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exitStatus
}

// Output returns the instance's captured-output buffer.
func (i *Instance) Output() *Buffer { return i.output }

// Sequencer hands out per-job monotonically increasing sequence numbers for
// new instances, so two instances of the same job can always be ordered
// even if their scheduled-fire timestamps collide.
type Sequencer struct {
	mu   sync.Mutex
	next map[string]uint64
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{next: make(map[string]uint64)}
}

// Next returns the next sequence number for jobID, starting at 1.
func (s *Sequencer) Next(jobID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[jobID]++
	return s.next[jobID]
}
