package engine

import "context"

// Reconcile prepares the store for a fresh engine run: it ensures the
// backend schema exists, then resolves any running-instance marker left
// over from a previous engine that didn't shut down cleanly. If the marked
// PID is no longer alive, the marker is cleared and the instance recorded
// as ended with an unknown exit code, so a crashed engine never leaves a
// job permanently "stuck running" in persisted state.
func (e *Engine) Reconcile(ctx context.Context) error {
	if err := e.store.EnsureSchema(ctx); err != nil {
		return err
	}
	recs, err := e.store.All(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if !rec.HasRunningMarker {
			continue
		}
		if pidAlive(rec.RunningPID) {
			e.logger.Warn("found instance still running across engine restart", "job", rec.JobID, "pid", rec.RunningPID)
			continue
		}
		e.logger.Warn("clearing stale running marker for dead instance", "job", rec.JobID, "pid", rec.RunningPID)
		if err := e.store.SetEnded(ctx, rec.JobID, e.clock.Now(), -1, false); err != nil {
			e.logger.Warn("failed to clear stale running marker", "job", rec.JobID, "err", err)
		}
	}
	return nil
}
