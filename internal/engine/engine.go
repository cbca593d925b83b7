// Package engine runs pcron's single-threaded main loop: minute-boundary
// schedule evaluation, reload, and child-exit handling, wired together from
// internal/catalog, internal/schedule, internal/queue, internal/supervisor,
// internal/store, internal/history, and internal/mailer. Signal handlers do
// nothing but post an event onto the loop's own channel, the way spec.md §5
// requires, and the loop is the sole mutator of the catalog pointer and the
// queues, so none of those structures need locking of their own.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/pcron/internal/catalog"
	"github.com/loykin/pcron/internal/config"
	"github.com/loykin/pcron/internal/history"
	"github.com/loykin/pcron/internal/instance"
	"github.com/loykin/pcron/internal/mailer"
	"github.com/loykin/pcron/internal/metrics"
	"github.com/loykin/pcron/internal/queue"
	"github.com/loykin/pcron/internal/schedule"
	"github.com/loykin/pcron/internal/store"
	"github.com/loykin/pcron/internal/supervisor"
	"github.com/loykin/pcron/internal/timesource"
)

// killGrace is the fixed grace period between TERM and KILL, both for
// conflict=kill preemption and for engine shutdown, per spec.md §5.
const killGrace = 10 * time.Second

// Engine owns one crontab.ini's worth of scheduling state for the lifetime
// of a daemon process.
type Engine struct {
	layout config.Layout
	daemon config.Daemon

	clock        timesource.Source
	store        store.Store
	historySinks []history.Sink
	mailer       *mailer.Mailer
	logger       *slog.Logger

	identity supervisor.Identity
	hostname string

	queues *queue.Manager
	seq    *instance.Sequencer

	catalogMu sync.RWMutex
	catalog   *catalog.Catalog

	runMu          sync.Mutex
	jobsByInstance map[*instance.Instance]*catalog.Job
	procByInstance map[*instance.Instance]*supervisor.Running

	events chan any
	stop   chan struct{}
}

// New builds an Engine for the given layout, daemon settings, and initial
// catalog. clock is injectable so tests can drive minute boundaries
// deterministically (internal/timesource.Virtual); production callers pass
// timesource.Real{}.
func New(layout config.Layout, daemon config.Daemon, cat *catalog.Catalog, st store.Store, sinks []history.Sink, clock timesource.Source, logger *slog.Logger) (*Engine, error) {
	id, err := supervisor.CurrentIdentity()
	if err != nil {
		return nil, fmt.Errorf("resolve engine identity: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	if logger == nil {
		logger = slog.Default()
	}
	sendmail := daemon.Mail.Sendmail
	if sendmail == "" {
		sendmail = "/usr/sbin/sendmail"
	}
	return &Engine{
		layout:         layout,
		daemon:         daemon,
		clock:          clock,
		store:          st,
		historySinks:   sinks,
		mailer:         mailer.New(sendmail),
		logger:         logger,
		identity:       id,
		hostname:       hostname,
		queues:         queue.NewManager(),
		seq:            instance.NewSequencer(),
		catalog:        cat,
		jobsByInstance: make(map[*instance.Instance]*catalog.Job),
		procByInstance: make(map[*instance.Instance]*supervisor.Running),
	}, nil
}

func (e *Engine) catalogSnapshot() *catalog.Catalog {
	e.catalogMu.RLock()
	defer e.catalogMu.RUnlock()
	return e.catalog
}

// Reload re-parses the catalog file at the engine's layout. A syntactically
// or semantically invalid catalog is logged and discarded; the previously
// loaded catalog keeps running untouched, per spec.md §4.7 and §7.
func (e *Engine) Reload() error {
	f, err := os.Open(e.layout.CrontabPath)
	if err != nil {
		return fmt.Errorf("open catalog %q: %w", e.layout.CrontabPath, err)
	}
	defer func() { _ = f.Close() }()

	cat, errs := catalog.Parse(f)
	if len(errs) > 0 {
		for _, pe := range errs {
			e.logger.Error("catalog reload rejected", "err", pe)
		}
		return fmt.Errorf("catalog reload: %d error(s), keeping previous catalog", len(errs))
	}
	e.catalogMu.Lock()
	e.catalog = cat
	e.catalogMu.Unlock()
	e.logger.Info("catalog reloaded", "jobs", len(cat.Jobs))
	return nil
}

// Run drives the main loop until ctx is canceled or a TERM/INT signal
// arrives. It blocks until shutdown is complete: every running instance has
// been sent TERM, escalated to KILL after killGrace if still alive, and
// reaped.
func (e *Engine) Run(ctx context.Context) error {
	e.events = make(chan any, 64)
	e.stop = make(chan struct{})
	defer close(e.stop)

	go e.tickLoop()
	stopSignals := e.watchSignals()
	defer stopSignals()

	for {
		select {
		case ev := <-e.events:
			switch t := ev.(type) {
			case tickEvent:
				e.tick(ctx, t.at)
			case reloadSignal:
				if err := e.Reload(); err != nil {
					e.logger.Warn("reload failed", "err", err)
				}
			case dumpSignal:
				e.dumpState()
			case shutdownSignal:
				e.shutdown()
				return nil
			case childExitEvent:
				e.onChildExit(ctx, t)
			}
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		}
	}
}

type tickEvent struct{ at time.Time }
type reloadSignal struct{}
type dumpSignal struct{}
type shutdownSignal struct{}
type childExitEvent struct {
	job  *catalog.Job
	inst *instance.Instance
	proc *supervisor.Running
}

func (e *Engine) tickLoop() {
	for {
		next := nextMinuteBoundary(e.clock.Now())
		if e.clock.SleepUntil(next, e.stop) {
			return
		}
		select {
		case e.events <- tickEvent{at: next}:
		case <-e.stop:
			return
		}
	}
}

func nextMinuteBoundary(now time.Time) time.Time {
	t := now.Truncate(time.Minute)
	if !t.After(now) {
		t = t.Add(time.Minute)
	}
	return t
}

// tick evaluates every scheduled job's next fire time against now and
// enqueues the ones that are due, in ascending job-id order (deterministic
// per spec.md §5).
func (e *Engine) tick(ctx context.Context, now time.Time) {
	cat := e.catalogSnapshot()
	for _, j := range cat.Scheduled() {
		rec, ok, err := e.store.Get(ctx, j.ID)
		if err != nil {
			e.logger.Warn("store read failed during tick", "job", j.ID, "err", err)
			continue
		}
		var lastSched *time.Time
		if ok && rec.HasLastSched {
			t := rec.LastScheduled
			lastSched = &t
		}
		st := schedule.State{LastScheduled: lastSched, EndedSince: e.endedSince(ctx)}
		fireAt, due := schedule.Next(j, st, now)
		if !due || fireAt.Truncate(time.Minute).After(now.Truncate(time.Minute)) {
			continue
		}
		e.fire(ctx, j, now)
	}
}

func (e *Engine) endedSince(ctx context.Context) func(jobID string) (time.Time, bool) {
	return func(jobID string) (time.Time, bool) {
		rec, ok, err := e.store.Get(ctx, jobID)
		if err != nil || !ok || !rec.HasLastEnd {
			return time.Time{}, false
		}
		return rec.LastEndTime, true
	}
}

// fire admits a newly due instance into its job's queue and acts on the
// conflict-policy decision.
func (e *Engine) fire(ctx context.Context, j *catalog.Job, now time.Time) {
	if err := e.store.SetLastScheduled(ctx, j.ID, now); err != nil {
		e.logger.Warn("failed to record last-scheduled", "job", j.ID, "err", err)
	}
	metrics.IncJobFire(j.ID)

	if j.Condition != "" && !e.checkCondition(ctx, j) {
		e.logger.Info("condition false, skipping fire", "job", j.ID)
		return
	}

	in := instance.New(j.ID, e.seq.Next(j.ID), now, 0)
	action := e.queues.Admit(j, in)

	e.runMu.Lock()
	e.jobsByInstance[in] = j
	e.runMu.Unlock()

	switch action {
	case queue.ActionRun:
		metrics.IncConflictOutcome(j.ID, string(j.Conflict), "run")
		e.runInstance(ctx, j, in)
	case queue.ActionEnqueued:
		metrics.IncConflictOutcome(j.ID, string(j.Conflict), "enqueued")
	case queue.ActionDropped:
		metrics.IncConflictOutcome(j.ID, string(j.Conflict), "dropped")
		in.MarkEnded(now, instance.ExitStatus{Ran: false})
		e.recordEnded(ctx, j, in, now)
	case queue.ActionKillCurrent:
		metrics.IncConflictOutcome(j.ID, string(j.Conflict), "kill_current")
		e.preemptRunning(j)
	}
}

func (e *Engine) preemptRunning(j *catalog.Job) {
	cur := e.queues.Running(queue.QueueNameFor(j))
	if cur == nil || cur.JobID != j.ID {
		// A different job occupies the shared queue; kill only ever
		// targets this job's own running instance.
		return
	}
	e.runMu.Lock()
	proc, ok := e.procByInstance[cur]
	e.runMu.Unlock()
	if !ok {
		return
	}
	go proc.Terminate(killGrace, e.clock)
}

// checkCondition runs a job's condition command to completion, synchronously,
// per spec.md §5's documented suspension point. Non-zero exit or a crash
// both suppress the fire.
func (e *Engine) checkCondition(ctx context.Context, j *catalog.Job) bool {
	env := supervisor.BuildEnv(e.identity, e.layout.Dir, j.ID, queue.QueueNameFor(j), nil, nil)
	spec := supervisor.Spec{
		JobID:             j.ID + ".condition",
		Command:           j.Condition,
		Shell:             shellFor(j, e.identity),
		WorkDir:           workDirFor(j, e.identity),
		Env:               env,
		EnvironmentScript: e.environmentScript(),
		Output:            instance.NewBuffer(4096),
	}
	proc, err := supervisor.Start(spec)
	if err != nil {
		e.logger.Warn("condition failed to start", "job", j.ID, "err", err)
		return false
	}
	<-proc.Done()
	exitCode, _, err := proc.Result()
	if err != nil {
		e.logger.Warn("condition crashed", "job", j.ID, "err", err)
		return false
	}
	return exitCode == 0
}

func (e *Engine) environmentScript() string {
	if e.layout.HasEnvironmentScript() {
		return e.layout.EnvironmentPath
	}
	return ""
}

func shellFor(j *catalog.Job, id supervisor.Identity) string {
	if j.Shell != "" {
		return j.Shell
	}
	return id.Shell
}

func workDirFor(j *catalog.Job, id supervisor.Identity) string {
	if j.WorkDir != "" {
		return j.WorkDir
	}
	return id.Home
}

// runInstance spawns a job's command and arranges for its exit to be
// reported back onto the main loop's event channel.
func (e *Engine) runInstance(ctx context.Context, j *catalog.Job, in *instance.Instance) {
	env := supervisor.BuildEnv(e.identity, e.layout.Dir, j.ID, queue.QueueNameFor(j), nil, nil)
	spec := supervisor.Spec{
		JobID:             j.ID,
		Command:           j.Command,
		Shell:             shellFor(j, e.identity),
		WorkDir:           workDirFor(j, e.identity),
		Env:               env,
		EnvironmentScript: e.environmentScript(),
		Output:            in.Output(),
	}

	proc, err := supervisor.Start(spec)
	if err != nil {
		endedAt := e.clock.Now()
		in.MarkEnded(endedAt, instance.ExitStatus{Ran: false, Err: err})
		e.logger.Error("spawn failed", "job", j.ID, "err", err)
		e.recordEnded(ctx, j, in, endedAt)
		return
	}

	startedAt := e.clock.Now()
	in.MarkRunning(startedAt)
	if err := e.store.SetRunning(ctx, j.ID, proc.PID(), startedAt); err != nil {
		e.logger.Warn("failed to record running marker", "job", j.ID, "err", err)
	}

	e.runMu.Lock()
	e.procByInstance[in] = proc
	e.runMu.Unlock()

	go func() {
		<-proc.Done()
		select {
		case e.events <- childExitEvent{job: j, inst: in, proc: proc}:
		case <-e.stop:
		}
	}()
}

func (e *Engine) onChildExit(ctx context.Context, ev childExitEvent) {
	exitCode, killed, err := ev.proc.Result()
	endedAt := e.clock.Now()
	ev.inst.MarkEnded(endedAt, instance.ExitStatus{Ran: true, ExitCode: exitCode, Killed: killed, Err: err})

	e.runMu.Lock()
	delete(e.procByInstance, ev.inst)
	e.runMu.Unlock()

	e.recordEnded(ctx, ev.job, ev.inst, endedAt)

	promoted := e.queues.Released(ev.job, ev.inst)
	if promoted == nil {
		return
	}
	e.runMu.Lock()
	pj := e.jobsByInstance[promoted]
	e.runMu.Unlock()
	if pj != nil {
		e.runInstance(ctx, pj, promoted)
	}
}

func (e *Engine) recordEnded(ctx context.Context, j *catalog.Job, in *instance.Instance, endedAt time.Time) {
	st := in.ExitStatus()
	metrics.IncInstanceExit(j.ID, outcomeLabel(st))
	metrics.SetQueueDepth(queue.QueueNameFor(j), e.queues.Depth(queue.QueueNameFor(j)))

	if st.Ran {
		metrics.ObserveInstanceDuration(j.ID, endedAt.Sub(in.StartedAt()).Seconds())
		if err := e.store.SetEnded(ctx, j.ID, endedAt, st.ExitCode, st.Killed); err != nil {
			e.logger.Warn("failed to record ended state", "job", j.ID, "err", err)
		}
	}

	for _, sink := range e.historySinks {
		evt := history.Event{
			JobID:      j.ID,
			Queue:      queue.QueueNameFor(j),
			OccurredAt: endedAt,
			StartedAt:  in.StartedAt(),
			EndedAt:    endedAt,
			ExitCode:   st.ExitCode,
			Killed:     st.Killed,
			Ran:        st.Ran,
		}
		if err := sink.Send(ctx, evt); err != nil {
			e.logger.Warn("history sink send failed", "job", j.ID, "err", err)
		}
	}

	e.maybeMail(j, in, endedAt)

	e.runMu.Lock()
	delete(e.jobsByInstance, in)
	e.runMu.Unlock()
}

func outcomeLabel(st instance.ExitStatus) string {
	switch {
	case !st.Ran:
		return "dropped"
	case st.Killed:
		return "killed"
	case st.ExitCode != 0:
		return "failed"
	default:
		return "completed"
	}
}

func (e *Engine) maybeMail(j *catalog.Job, in *instance.Instance, endedAt time.Time) {
	st := in.ExitStatus()
	if !j.Mail && !(j.Warn && !st.Ran) {
		return
	}
	to := splitRecipients(j.MailTo)
	if len(to) == 0 {
		return
	}
	m := e.mailer
	if j.Sendmail != "" {
		m = mailer.New(j.Sendmail)
	}
	o := mailer.Outcome{
		JobID:     j.ID,
		Command:   j.Command,
		Username:  firstNonEmpty(j.Username, e.identity.User),
		Hostname:  firstNonEmpty(j.Hostname, e.hostname),
		StartedAt: in.StartedAt(),
		EndedAt:   endedAt,
		ExitCode:  st.ExitCode,
		Killed:    st.Killed,
		Ran:       st.Ran,
		Output:    in.Output().Bytes(),
	}
	if err := m.Send(to, o); err != nil {
		e.logger.Error("mail send failed", "job", j.ID, "err", err)
	}
}

func splitRecipients(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// dumpState logs the full scheduler state: every job's queue depth and
// current occupant, per spec.md §6's USR1 contract. Only emitted at info
// level or more verbose.
func (e *Engine) dumpState() {
	level := strings.ToLower(e.daemon.Log.Level)
	if level != "" && level != "info" && level != "debug" {
		return
	}
	cat := e.catalogSnapshot()
	for _, j := range cat.Scheduled() {
		name := queue.QueueNameFor(j)
		running := e.queues.Running(name)
		e.logger.Info("state dump",
			"job", j.ID, "queue", name,
			"running", running != nil,
			"waiting", e.queues.Depth(name),
		)
	}
}

// shutdown sends TERM (escalating to KILL after killGrace) to every
// currently running instance and waits for them all to exit.
func (e *Engine) shutdown() {
	e.runMu.Lock()
	procs := make([]*supervisor.Running, 0, len(e.procByInstance))
	for _, p := range e.procByInstance {
		procs = append(procs, p)
	}
	e.runMu.Unlock()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *supervisor.Running) {
			defer wg.Done()
			p.Terminate(killGrace, e.clock)
		}(p)
	}
	wg.Wait()
	e.logger.Info("engine shutdown complete")
}
