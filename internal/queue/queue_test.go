package queue

import (
	"testing"
	"time"

	"github.com/loykin/pcron/internal/catalog"
	"github.com/loykin/pcron/internal/instance"
)

func job(id string, conflict catalog.ConflictPolicy, queueName string) *catalog.Job {
	return &catalog.Job{ID: id, Conflict: conflict, Queue: queueName}
}

func TestFirstInstanceRunsImmediately(t *testing.T) {
	m := NewManager()
	j := job("a", catalog.ConflictIgnore, "")
	in := instance.New(j.ID, 1, time.Now(), 0)
	if got := m.Admit(j, in); got != ActionRun {
		t.Fatalf("expected ActionRun, got %v", got)
	}
	if in.State() != instance.StateReady {
		t.Fatalf("expected instance to be marked ready")
	}
}

func TestIgnorePolicyQueuesBehindRunning(t *testing.T) {
	m := NewManager()
	j := job("a", catalog.ConflictIgnore, "")
	first := instance.New(j.ID, 1, time.Now(), 0)
	m.Admit(j, first)

	second := instance.New(j.ID, 2, time.Now(), 0)
	if got := m.Admit(j, second); got != ActionEnqueued {
		t.Fatalf("expected ActionEnqueued, got %v", got)
	}
	if m.Depth(j.ID) != 1 {
		t.Fatalf("expected queue depth 1, got %d", m.Depth(j.ID))
	}
}

func TestSkipPolicyDropsNewInstance(t *testing.T) {
	m := NewManager()
	j := job("a", catalog.ConflictSkip, "")
	first := instance.New(j.ID, 1, time.Now(), 0)
	m.Admit(j, first)

	second := instance.New(j.ID, 2, time.Now(), 0)
	if got := m.Admit(j, second); got != ActionDropped {
		t.Fatalf("expected ActionDropped, got %v", got)
	}
	if m.Depth(j.ID) != 0 {
		t.Fatalf("expected queue depth 0 (nothing queued), got %d", m.Depth(j.ID))
	}
}

func TestKillPolicySignalsCallerToPreempt(t *testing.T) {
	m := NewManager()
	j := job("a", catalog.ConflictKill, "")
	first := instance.New(j.ID, 1, time.Now(), 0)
	m.Admit(j, first)

	second := instance.New(j.ID, 2, time.Now(), 0)
	if got := m.Admit(j, second); got != ActionKillCurrent {
		t.Fatalf("expected ActionKillCurrent, got %v", got)
	}

	// Caller kills `first`, then reports it released; `second` should be
	// promoted to running.
	promoted := m.Released(j, first)
	if promoted != second {
		t.Fatalf("expected second instance to be promoted after release")
	}
	if second.State() != instance.StateReady {
		t.Fatalf("expected promoted instance marked ready")
	}
}

func TestSharedQueueNameSerializesDifferentJobs(t *testing.T) {
	m := NewManager()
	a := job("a", catalog.ConflictIgnore, "shared")
	b := job("b", catalog.ConflictIgnore, "shared")

	ai := instance.New(a.ID, 1, time.Now(), 0)
	if got := m.Admit(a, ai); got != ActionRun {
		t.Fatalf("expected job a to run first, got %v", got)
	}

	bi := instance.New(b.ID, 1, time.Now(), 0)
	if got := m.Admit(b, bi); got != ActionEnqueued {
		t.Fatalf("expected job b to queue behind job a on the shared queue, got %v", got)
	}

	promoted := m.Released(a, ai)
	if promoted != bi {
		t.Fatalf("expected job b's instance promoted after job a released the shared queue")
	}
}

func TestSkipPolicyOnlyDropsAgainstOwnJob(t *testing.T) {
	m := NewManager()
	a := job("a", catalog.ConflictSkip, "shared")
	b := job("b", catalog.ConflictSkip, "shared")

	ai := instance.New(a.ID, 1, time.Now(), 0)
	if got := m.Admit(a, ai); got != ActionRun {
		t.Fatalf("expected job a to run first, got %v", got)
	}

	// Job b has no instance of its own anywhere in the queue, so it should
	// queue behind job a rather than being dropped, even though a's
	// instance currently occupies the shared queue and both use skip.
	bi := instance.New(b.ID, 1, time.Now(), 0)
	if got := m.Admit(b, bi); got != ActionEnqueued {
		t.Fatalf("expected job b to queue behind job a, got %v", got)
	}

	// Job a fires again while its own instance is still running: this is
	// where skip actually applies, since a now has R set for itself.
	ai2 := instance.New(a.ID, 2, time.Now(), 0)
	if got := m.Admit(a, ai2); got != ActionDropped {
		t.Fatalf("expected job a's second firing to be dropped (own R occupied), got %v", got)
	}

	promoted := m.Released(a, ai)
	if promoted != bi {
		t.Fatalf("expected job b's instance promoted once job a released the shared queue")
	}
}

func TestKillPolicyOnlyPreemptsOwnJob(t *testing.T) {
	m := NewManager()
	a := job("a", catalog.ConflictKill, "shared")
	b := job("b", catalog.ConflictKill, "shared")

	ai := instance.New(a.ID, 1, time.Now(), 0)
	if got := m.Admit(a, ai); got != ActionRun {
		t.Fatalf("expected job a to run first, got %v", got)
	}

	// Job b shares the queue but has no running or waiting instance of its
	// own, so its kill policy has nothing to preempt: it just queues.
	bi := instance.New(b.ID, 1, time.Now(), 0)
	if got := m.Admit(b, bi); got != ActionEnqueued {
		t.Fatalf("expected job b to queue behind job a rather than preempt it, got %v", got)
	}
	if m.Running("shared") != ai {
		t.Fatalf("expected job a's instance to remain the running occupant")
	}
}

func TestReleasedIgnoresStaleOccupant(t *testing.T) {
	m := NewManager()
	j := job("a", catalog.ConflictIgnore, "")
	first := instance.New(j.ID, 1, time.Now(), 0)
	m.Admit(j, first)

	stale := instance.New(j.ID, 99, time.Now(), 0)
	if promoted := m.Released(j, stale); promoted != nil {
		t.Fatalf("expected no promotion for a stale release report")
	}
	if m.Running(j.ID) != first {
		t.Fatalf("expected the real running instance to be unaffected")
	}
}
