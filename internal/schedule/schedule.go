package schedule

import (
	"time"

	"github.com/loykin/pcron/internal/catalog"
)

// State is the subset of a job's persisted state the evaluators need: when
// it last fired (for interval and post sources) and, for post targets, a
// lookup of when each target's most recent instance ended.
type State struct {
	LastScheduled *time.Time
	EndedSince    func(jobID string) (time.Time, bool)
}

// Next combines whichever schedule sources job configures and returns the
// earliest of them, per spec: "the job's next fire time is the minimum
// next-fire time across its configured evaluators". A job with no
// configured source (a startup-only job) never fires on its own.
//
// t0 is the minute boundary being evaluated (the engine calls this once per
// minute with t0 set to that minute). CalendarNext returns the earliest
// minute strictly after the time it's given, so it's queried against
// t0-1m: that makes t0 itself eligible to come back as the answer, which is
// what lets a due calendar job actually fire on its own boundary instead of
// forever landing one minute in the future.
func Next(job *catalog.Job, st State, t0 time.Time) (time.Time, bool) {
	var candidates []time.Time

	if job.Time != nil {
		if t, ok := CalendarNext(job, t0.Add(-time.Minute)); ok {
			candidates = append(candidates, t)
		}
	}

	if job.Interval > 0 {
		candidates = append(candidates, IntervalNext(st.LastScheduled, job.Interval, t0))
	}

	if len(job.Post) > 0 && st.EndedSince != nil {
		lastFire := t0
		if st.LastScheduled != nil {
			lastFire = *st.LastScheduled
		} else {
			lastFire = time.Time{}
		}
		if t, ok := PostNext(job.Post, lastFire, st.EndedSince); ok {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		return time.Time{}, false
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(min) {
			min = c
		}
	}
	return min, true
}
