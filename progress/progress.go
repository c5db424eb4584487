/*
 * Package progress carries per-file transfer feedback out of a delta pass.
 * The generator accounts bytes as it flushes them; a Tracker turns the raw
 * counts into rate and completion figures and forwards them to whatever sink
 * the caller plugged in. Pacing sleeps are reported separately so a consumer
 * can tell disk speed from throttle time.
 */
package progress

import (
    "sync"
    "time"

    log "github.com/sirupsen/logrus"
)

// Report is one progress observation for one file.
type Report struct {
    Path        string
    TotalBytes  uint64
    Transferred uint64
    Remaining   uint64
    Fraction    float64
    Rate        float64 // bytes per second, pacing time excluded
    Elapsed     time.Duration
    Throttled   time.Duration
}

// Sink consumes progress reports. Implementations must tolerate bursts; the
// generator reports after every flush.
type Sink interface {
    Update(report Report)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(report Report)

func (f SinkFunc) Update(report Report) {
    f(report)
}

// Discard drops every report.
var Discard Sink = SinkFunc(func(Report) {})

// LogSink writes reports to the structured log at debug level.
type LogSink struct{}

func (LogSink) Update(report Report) {
    log.WithFields(log.Fields{
        "path":        report.Path,
        "transferred": report.Transferred,
        "total":       report.TotalBytes,
        "fraction":    report.Fraction,
        "rate":        report.Rate,
    }).Debug("transfer progress")
}

// RateLimited wraps a sink so it sees at most one report per interval. The
// final report of a transfer should be pushed through Flush regardless.
type RateLimited struct {
    mutex    sync.Mutex
    sink     Sink
    interval time.Duration
    last     time.Time
    pending  Report
    dirty    bool
}

func NewRateLimited(sink Sink, interval time.Duration) *RateLimited {
    return &RateLimited{sink: sink, interval: interval}
}

func (r *RateLimited) Update(report Report) {
    r.mutex.Lock()
    defer r.mutex.Unlock()

    now := time.Now()
    if !r.last.IsZero() && now.Sub(r.last) < r.interval {
        r.pending = report
        r.dirty = true
        return
    }
    r.last = now
    r.dirty = false
    r.sink.Update(report)
}

// Flush delivers the most recent suppressed report, if any.
func (r *RateLimited) Flush() {
    r.mutex.Lock()
    defer r.mutex.Unlock()
    if r.dirty {
        r.dirty = false
        r.sink.Update(r.pending)
    }
}

// Tracker accumulates one file's transfer counts and feeds a sink.
// Safe for concurrent accounting.
type Tracker struct {
    mutex       sync.Mutex
    path        string
    totalBytes  uint64
    transferred uint64
    throttled   time.Duration
    started     time.Time
    sink        Sink
    now         func() time.Time
}

// NewTracker starts tracking a transfer of totalBytes for path. A nil sink
// is replaced with Discard.
func NewTracker(path string, totalBytes uint64, sink Sink) *Tracker {
    return newTrackerWithClock(path, totalBytes, sink, time.Now)
}

func newTrackerWithClock(path string, totalBytes uint64, sink Sink, now func() time.Time) *Tracker {
    if sink == nil {
        sink = Discard
    }
    return &Tracker{
        path:       path,
        totalBytes: totalBytes,
        started:    now(),
        sink:       sink,
        now:        now,
    }
}

/*
 * Account records bytes having moved plus any pacing sleep that accompanied
 * them, then pushes a fresh report to the sink. The throttled time is
 * subtracted from the rate denominator: a heavily paced transfer still shows
 * the speed the storage achieved.
 */
func (t *Tracker) Account(bytes int, throttled time.Duration) {
    t.mutex.Lock()
    if bytes > 0 {
        t.transferred += uint64(bytes)
    }
    if throttled > 0 {
        t.throttled += throttled
    }
    report := t.snapshot()
    t.mutex.Unlock()

    t.sink.Update(report)
}

// Transferred returns the bytes accounted so far.
func (t *Tracker) Transferred() uint64 {
    t.mutex.Lock()
    defer t.mutex.Unlock()
    return t.transferred
}

// snapshot builds a Report; caller holds the mutex.
func (t *Tracker) snapshot() Report {
    var (
        elapsed  = t.now().Sub(t.started)
        counting = elapsed - t.throttled
        report   = Report{
            Path:        t.path,
            TotalBytes:  t.totalBytes,
            Transferred: t.transferred,
            Elapsed:     elapsed,
            Throttled:   t.throttled,
        }
    )
    if t.totalBytes > 0 {
        report.Fraction = float64(t.transferred) / float64(t.totalBytes)
        if t.transferred < t.totalBytes {
            report.Remaining = t.totalBytes - t.transferred
        }
    }
    if counting > 0 {
        report.Rate = float64(t.transferred) / counting.Seconds()
    }
    return report
}
