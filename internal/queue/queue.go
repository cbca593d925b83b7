// Package queue serializes job instances through named FIFOs: at most one
// instance per queue runs at a time, and a job's conflict policy decides
// what happens when a new firing arrives while the queue is occupied.
package queue

import (
	"sync"

	"github.com/loykin/pcron/internal/catalog"
	"github.com/loykin/pcron/internal/instance"
)

// Action is what the caller should do with an instance that was just
// admitted or rejected by its queue.
type Action int

const (
	// ActionEnqueued means the instance was appended and is not yet at the
	// head of its queue.
	ActionEnqueued Action = iota
	// ActionRun means the instance is at the head of an idle queue and
	// should be started immediately.
	ActionRun
	// ActionDropped means a conflicting instance already occupies the
	// queue and this job's conflict policy is "skip": the new instance
	// ends without ever running.
	ActionDropped
	// ActionKillCurrent means this job's conflict policy is "kill": the
	// queue's current occupant must be terminated so the new instance can
	// run in its place.
	ActionKillCurrent
)

// Queue is one named FIFO: it holds at most one running instance, plus any
// instances still waiting for their turn.
type Queue struct {
	Name string

	mu      sync.Mutex
	running *instance.Instance
	waiting []*instance.Instance
}

// Manager owns every named queue in the engine, creating one lazily the
// first time a job references it.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewManager creates an empty queue Manager.
func NewManager() *Manager {
	return &Manager{queues: make(map[string]*Queue)}
}

func (m *Manager) queueFor(name string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = &Queue{Name: name}
		m.queues[name] = q
	}
	return q
}

// QueueNameFor returns the job's configured queue name, defaulting to the
// job's own id when it has none (so unrelated jobs don't serialize against
// each other by accident).
func QueueNameFor(j *catalog.Job) string {
	if j.Queue != "" {
		return j.Queue
	}
	return j.ID
}

// Admit offers a newly fired instance to its job's queue and returns what
// the caller should do with it. The conflict policy (spec.md §4.3) is
// scoped to this job alone: W (pending-or-ready instances of this job) and
// R (the running instance of this job, if any) — not whatever else happens
// to occupy the shared queue. A job with neither just joins the queue's
// ordinary FIFO, running immediately if the queue is idle regardless of
// which other job last occupied it.
func (m *Manager) Admit(j *catalog.Job, in *instance.Instance) Action {
	q := m.queueFor(QueueNameFor(j))
	q.mu.Lock()
	defer q.mu.Unlock()

	ownRunning := q.running != nil && q.running.JobID == j.ID
	ownWaiting := false
	for _, w := range q.waiting {
		if w.JobID == j.ID {
			ownWaiting = true
			break
		}
	}

	if ownRunning || ownWaiting {
		switch j.Conflict {
		case catalog.ConflictSkip:
			return ActionDropped
		case catalog.ConflictKill:
			// The caller is responsible for actually killing R; once it
			// reports the kill via Released, the new instance becomes the
			// occupant. If this job only has a not-yet-started instance
			// waiting (no R to kill), it just takes priority at the front.
			q.waiting = append([]*instance.Instance{in}, q.waiting...)
			if ownRunning {
				return ActionKillCurrent
			}
			return ActionEnqueued
		default:
			q.waiting = append(q.waiting, in)
			return ActionEnqueued
		}
	}

	if q.running == nil {
		q.running = in
		in.MarkReady()
		return ActionRun
	}
	q.waiting = append(q.waiting, in)
	return ActionEnqueued
}

// Released reports that a queue's running instance has ended (however it
// ended), and promotes the next waiting instance, if any, to running. It
// returns the promoted instance, or nil if the queue is now idle.
func (m *Manager) Released(j *catalog.Job, ended *instance.Instance) *instance.Instance {
	q := m.queueFor(QueueNameFor(j))
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running != ended {
		// Not the current occupant (stale report); nothing to do.
		return nil
	}
	q.running = nil
	if len(q.waiting) == 0 {
		return nil
	}
	next := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.running = next
	next.MarkReady()
	return next
}

// Depth returns the number of instances currently waiting behind the
// running one, for the named queue.
func (m *Manager) Depth(name string) int {
	q := m.queueFor(name)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Running returns the queue's current occupant, or nil if idle.
func (m *Manager) Running(name string) *instance.Instance {
	q := m.queueFor(name)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}
