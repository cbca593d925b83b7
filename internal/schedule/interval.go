package schedule

import "time"

// IntervalNext computes the next fire time for a fixed-interval job. With no
// prior firing it fires at t0 (the engine's start time). After a restart, it
// resumes at max(lastScheduled+interval, t0) rather than backfilling every
// interval tick that elapsed while the engine was down.
func IntervalNext(lastScheduled *time.Time, interval time.Duration, t0 time.Time) time.Time {
	if lastScheduled == nil {
		return t0
	}
	next := lastScheduled.Add(interval)
	if next.Before(t0) {
		return t0
	}
	return next
}
