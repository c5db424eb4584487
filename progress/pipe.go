package progress

import (
    "io"
)

// reportingReader forwards reads from the pipe while accounting them.
type reportingReader struct {
    reader  *io.PipeReader
    tracker *Tracker
    reports chan Report
}

func (r *reportingReader) Read(p []byte) (int, error) {
    n, err := r.reader.Read(p)
    if n > 0 {
        r.tracker.Account(n, 0)
    }
    return n, err
}

func (r *reportingReader) Close() error {
    err := r.reader.Close()
    close(r.reports)
    return err
}

/*
 * PipeWithReport connects a producer to a consumer the way io.Pipe does,
 * with every byte crossing the pipe reported on the returned channel. The
 * channel closes when the read side is closed; the reader must be closed
 * exactly once.
 */
func PipeWithReport(path string, totalBytes uint64) (io.ReadCloser, io.WriteCloser, <-chan Report) {
    var (
        reader, writer = io.Pipe()
        reports        = make(chan Report, 1)
    )

    // the sink keeps only the freshest report; a slow consumer never
    // stalls the pipe
    sink := SinkFunc(func(report Report) {
        for {
            select {
            case reports <- report:
                return
            default:
                select {
                case <-reports:
                default:
                }
            }
        }
    })

    wrapped := &reportingReader{
        reader:  reader,
        tracker: NewTracker(path, totalBytes, sink),
        reports: reports,
    }
    return wrapped, writer, reports
}
