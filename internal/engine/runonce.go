package engine

import (
	"context"
	"fmt"

	"github.com/loykin/pcron/internal/instance"
)

// RunOneJob runs a startup job (one with no schedule source, reachable only
// via this entry point per spec.md §3) to completion, synchronously,
// without starting the daemon's main loop. It still goes through the same
// store/history/mailer recording path as a scheduled fire, so a startup job
// run this way looks identical in history/mail to one the daemon itself
// triggered.
func (e *Engine) RunOneJob(ctx context.Context, jobID string) (exitCode int, err error) {
	cat := e.catalogSnapshot()
	j, ok := cat.Jobs[jobID]
	if !ok || !j.Active {
		return -1, fmt.Errorf("job %q not found", jobID)
	}

	e.events = make(chan any, 8)
	e.stop = make(chan struct{})
	defer close(e.stop)

	now := e.clock.Now()
	in := instance.New(j.ID, e.seq.Next(j.ID), now, 0)

	e.runMu.Lock()
	e.jobsByInstance[in] = j
	e.runMu.Unlock()

	e.runInstance(ctx, j, in)

	for {
		ev := <-e.events
		exit, ok := ev.(childExitEvent)
		if !ok || exit.inst != in {
			continue
		}
		e.onChildExit(ctx, exit)
		st := in.ExitStatus()
		if st.Err != nil {
			return st.ExitCode, st.Err
		}
		return st.ExitCode, nil
	}
}
