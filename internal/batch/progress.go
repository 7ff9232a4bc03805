package batch

import (
	"time"
)

// RunSummary is a point-in-time snapshot of a run.
type RunSummary struct {
	RunID             string        `json:"run_id"`
	Total             int           `json:"total"`
	Processed         int           `json:"processed"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	PersistFailed     int           `json:"persist_failed"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at,omitzero"`
	Elapsed           time.Duration `json:"-"`
	ElapsedSeconds    float64       `json:"elapsed_seconds"`
	SuccessRate       float64       `json:"success_rate"`
	AvgSecondsPerItem float64       `json:"average_seconds_per_item"`
	Interrupted       bool          `json:"interrupted"`
}

// Tracker accumulates outcome counts. It is not safe for concurrent use and
// is meant to be driven from the goroutine that coordinates batches.
type Tracker struct {
	runID     string
	total     int
	processed int
	succeeded int
	failed    int

	persistFailed int

	now         func() time.Time
	startedAt   time.Time
	finishedAt  time.Time
	lastElapsed time.Duration
	interrupted bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker starts the clock for a run of total items.
func NewTracker(runID string, total int, opts ...TrackerOption) *Tracker {
	t := &Tracker{runID: runID, total: total, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	t.startedAt = t.now()
	return t
}

// Record counts one outcome.
func (t *Tracker) Record(o interface{ OK() bool }) {
	t.processed++
	if o.OK() {
		t.succeeded++
	} else {
		t.failed++
	}
}

// RecordPersistFailures counts successful outcomes that could not be stored.
func (t *Tracker) RecordPersistFailures(n int) {
	if n > 0 {
		t.persistFailed += n
	}
}

// Finalize freezes the elapsed time. Later Summary calls report the frozen
// value. Once a run is marked interrupted it stays interrupted.
func (t *Tracker) Finalize(interrupted bool) RunSummary {
	if t.finishedAt.IsZero() {
		t.finishedAt = t.now()
	}
	t.interrupted = t.interrupted || interrupted
	return t.Summary()
}

// Summary returns the current counters and derived rates.
func (t *Tracker) Summary() RunSummary {
	end := t.finishedAt
	if end.IsZero() {
		end = t.now()
	}
	elapsed := end.Sub(t.startedAt)
	if elapsed < t.lastElapsed {
		elapsed = t.lastElapsed
	}
	t.lastElapsed = elapsed

	s := RunSummary{
		RunID:          t.runID,
		Total:          t.total,
		Processed:      t.processed,
		Succeeded:      t.succeeded,
		Failed:         t.failed,
		PersistFailed:  t.persistFailed,
		StartedAt:      t.startedAt,
		FinishedAt:     t.finishedAt,
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		Interrupted:    t.interrupted,
	}
	if t.processed > 0 {
		s.SuccessRate = float64(t.succeeded) / float64(t.processed) * 100
		s.AvgSecondsPerItem = elapsed.Seconds() / float64(t.processed)
	}
	return s
}
