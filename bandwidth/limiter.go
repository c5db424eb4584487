/*
 * Package bandwidth paces the literal byte stream of a delta pass. The
 * limiter keeps a signed nanosecond debt: registering bytes adds the time
 * those bytes deserve at the configured rate, elapsed wall time pays it off,
 * and a positive balance is slept away. Credit from idle periods is capped at
 * one second so a long pause cannot buy an unbounded burst.
 */
package bandwidth

import (
    "sync"
    "time"

    "github.com/pkg/errors"
)

const (
    nanosPerSecond = int64(time.Second)

    // maxCreditNanos bounds how far ahead of schedule the limiter may run.
    maxCreditNanos = nanosPerSecond
)

// ErrZeroRate is returned when a limiter is requested without a rate.
var ErrZeroRate = errors.New("bandwidth limit must be greater than zero bytes per second")

// Sleeper abstracts the blocking wait so tests can record instead of sleep.
type Sleeper func(d time.Duration)

// Clock abstracts time sampling for deterministic tests.
type Clock func() time.Time

// Limiter throttles a byte stream to a fixed rate. Safe for use from
// multiple goroutines sharing one budget.
type Limiter struct {
    mutex          sync.Mutex
    bytesPerSecond uint64
    debtNanos      int64
    lastInstant    time.Time
    sleep          Sleeper
    now            Clock
}

// NewLimiter builds a limiter pacing to bytesPerSecond.
func NewLimiter(bytesPerSecond uint64) (*Limiter, error) {
    return NewLimiterWithClock(bytesPerSecond, time.Now, time.Sleep)
}

// NewLimiterWithClock is the injection point for tests.
func NewLimiterWithClock(bytesPerSecond uint64, now Clock, sleep Sleeper) (*Limiter, error) {
    if bytesPerSecond == 0 {
        return nil, ErrZeroRate
    }
    return &Limiter{
        bytesPerSecond: bytesPerSecond,
        lastInstant:    now(),
        sleep:          sleep,
        now:            now,
    }, nil
}

/*
 * Register accounts for bytes having just been written and sleeps if the
 * stream is ahead of the configured rate. It returns the duration actually
 * slept, zero when the stream is on or behind schedule, so callers can
 * subtract pacing time from their own throughput measurements.
 */
func (l *Limiter) Register(bytes int) time.Duration {
    if bytes <= 0 {
        return 0
    }

    l.mutex.Lock()
    defer l.mutex.Unlock()

    now := l.now()
    elapsed := now.Sub(l.lastInstant).Nanoseconds()
    if elapsed > 0 {
        l.debtNanos -= elapsed
    }

    l.debtNanos += l.requiredNanos(bytes)

    if l.debtNanos > 0 {
        pause := time.Duration(l.debtNanos)
        l.sleep(pause)
        l.lastInstant = l.now()
        l.debtNanos = 0
        return pause
    }

    if l.debtNanos < -maxCreditNanos {
        l.debtNanos = -maxCreditNanos
    }
    l.lastInstant = now
    return 0
}

// Rate returns the configured limit in bytes per second.
func (l *Limiter) Rate() uint64 {
    return l.bytesPerSecond
}

// requiredNanos converts a byte count to pacing time, rounding up so that
// fractional nanoseconds still cost something.
func (l *Limiter) requiredNanos(bytes int) int64 {
    var (
        numerator = uint64(bytes) * uint64(nanosPerSecond)
        ns        = numerator / l.bytesPerSecond
    )
    if numerator%l.bytesPerSecond != 0 {
        ns++
    }
    return int64(ns)
}
