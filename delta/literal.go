package delta

import (
    "time"

    "github.com/oferchen/deltasync/bandwidth"
    "github.com/oferchen/deltasync/compress"
    "github.com/oferchen/deltasync/progress"
)

// defaultFlushLen bounds how much pending literal data accumulates before a
// partial flush; the run stays one logical operation across flushes.
const defaultFlushLen = 32 * 1024

/*
 * literalSink accumulates the bytes of the current literal run and moves them
 * to the destination in bounded flushes. Each flush follows a fixed order:
 * raw bytes land on the destination first, then the compressor sees them so
 * the transmitted size is known, then that size is charged to the bandwidth
 * limiter, then progress is reported. Compression ratio decides the throttle
 * cost, so the charge can only happen after the compressor has the bytes.
 */
type literalSink struct {
    writer     *chunkWriter
    compressor compress.Compressor
    limiter    *bandwidth.Limiter
    tracker    *progress.Tracker
    flushLen   int

    pending        []byte
    runLength      uint64
    lastRegistered uint64
}

func newLiteralSink(
    writer *chunkWriter,
    compressor compress.Compressor,
    limiter *bandwidth.Limiter,
    tracker *progress.Tracker,
    flushLen int,
) *literalSink {
    if flushLen <= 0 {
        flushLen = defaultFlushLen
    }
    return &literalSink{
        writer:     writer,
        compressor: compressor,
        limiter:    limiter,
        tracker:    tracker,
        flushLen:   flushLen,
        pending:    make([]byte, 0, flushLen),
    }
}

// push adds source bytes to the current run, flushing when the pending
// buffer fills.
func (s *literalSink) push(bytes ...byte) error {
    s.pending = append(s.pending, bytes...)
    if len(s.pending) >= s.flushLen {
        return s.flushChunk()
    }
    return nil
}

// closeRun flushes whatever is pending and returns the finished run's total
// length, zero when no literal bytes accumulated since the last run.
func (s *literalSink) closeRun() (uint64, error) {
    if err := s.flushChunk(); err != nil {
        return 0, err
    }
    length := s.runLength
    s.runLength = 0
    return length, nil
}

// flushChunk moves the pending bytes out; clears but keeps the buffer.
func (s *literalSink) flushChunk() error {
    if len(s.pending) == 0 {
        return nil
    }
    var (
        chunk = s.pending
        raw   = len(chunk)
    )

    if err := s.writer.Write(chunk); err != nil {
        return err
    }

    transmitted := raw
    if s.compressor != nil {
        if _, err := s.compressor.Write(chunk); err != nil {
            return err
        }
        written := s.compressor.BytesWritten()
        transmitted = int(written - s.lastRegistered)
        s.lastRegistered = written
    }

    var slept time.Duration
    if s.limiter != nil && transmitted > 0 {
        slept = s.limiter.Register(transmitted)
    }

    s.tracker.Account(raw, slept)

    s.runLength += uint64(raw)
    s.pending = s.pending[:0]
    return nil
}

/*
 * finalize closes the compressor and charges its tail against the limiter.
 * Codecs hold data back until end of stream; those bytes were never
 * registered by any flush, and an unthrottled tail would let every transfer
 * end with a free burst.
 */
func (s *literalSink) finalize() error {
    if s.compressor == nil {
        return nil
    }
    if err := s.compressor.Finish(); err != nil {
        return err
    }
    written := s.compressor.BytesWritten()
    remaining := int(written - s.lastRegistered)
    s.lastRegistered = written

    if s.limiter != nil && remaining > 0 {
        slept := s.limiter.Register(remaining)
        s.tracker.Account(0, slept)
    }
    return nil
}
