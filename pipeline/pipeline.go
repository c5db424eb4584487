/*
 * Package pipeline fans independent per-file delta passes out across a
 * bounded worker pool. Each pass is fully self-contained - one goroutine
 * owns one file's window, checksum state and buffers - so the only shared
 * collaborators are the ones that synchronize internally: the bandwidth
 * limiter and the progress sink.
 *
 * File-level failures are recorded per file and do not stop the batch.
 * Systemic failures do: a timeout or a digest configuration error on one
 * file would hit every file, so the whole run aborts.
 */
package pipeline

import (
    "context"
    "io"
    "runtime"
    "time"

    "github.com/pkg/errors"
    log "github.com/sirupsen/logrus"
    "golang.org/x/sync/errgroup"

    "github.com/oferchen/deltasync/bandwidth"
    "github.com/oferchen/deltasync/compress"
    "github.com/oferchen/deltasync/delta"
    "github.com/oferchen/deltasync/index"
    "github.com/oferchen/deltasync/progress"
    "github.com/oferchen/deltasync/signature"
    "github.com/oferchen/deltasync/strongsum"
)

// sequentialThreshold is the batch size below which spawning workers costs
// more than it buys.
const sequentialThreshold = 2

// Job is one file's delta pass. Every reader, writer and codec belongs to
// this job alone; jobs never share I/O handles.
type Job struct {
    Path        string
    Source      io.Reader
    Basis       io.ReadSeeker
    Dest        io.Writer
    Index       *index.BlockMatchIndex
    Compressor  compress.Compressor
    SourceBytes uint64
}

// Result pairs a job with its outcome, in submission order.
type Result struct {
    Path string
    Ops  []delta.Op
    Err  error
}

// Config carries the collaborators shared across the batch.
type Config struct {
    // Workers bounds concurrent passes; zero or negative means one per CPU.
    Workers int

    Algorithm strongsum.Algorithm
    Limiter   *bandwidth.Limiter
    Progress  progress.Sink
    Timeout   time.Duration
    Sparse    bool
}

/*
 * Run executes every job and returns one Result per job in submission
 * order. The returned error is non-nil only for systemic failures (timeout,
 * digest misconfiguration, cancelled context); per-file I/O failures live in
 * the individual results.
 */
func Run(ctx context.Context, config Config, jobs []Job) ([]Result, error) {
    workers := config.Workers
    if workers <= 0 {
        workers = runtime.NumCPU()
    }

    results := make([]Result, len(jobs))
    for i, job := range jobs {
        results[i].Path = job.Path
    }

    if len(jobs) < sequentialThreshold || workers == 1 {
        for i := range jobs {
            if err := ctx.Err(); err != nil {
                return results, errors.Wrap(err, "delta batch cancelled")
            }
            if err := runJob(config, jobs[i], &results[i]); err != nil {
                return results, err
            }
        }
        return results, nil
    }

    group, groupCtx := errgroup.WithContext(ctx)
    group.SetLimit(workers)

    for i := range jobs {
        i := i
        group.Go(func() error {
            if err := groupCtx.Err(); err != nil {
                return errors.Wrap(err, "delta batch cancelled")
            }
            return runJob(config, jobs[i], &results[i])
        })
    }

    if err := group.Wait(); err != nil {
        return results, err
    }
    return results, nil
}

// runJob executes one pass, keeping file-level failures in the result and
// promoting systemic ones to the returned error.
func runJob(config Config, job Job, result *Result) error {
    ops, err := delta.Generate(delta.Config{
        Path:        job.Path,
        Source:      job.Source,
        Basis:       job.Basis,
        Dest:        job.Dest,
        Index:       job.Index,
        Compressor:  job.Compressor,
        Algorithm:   config.Algorithm,
        SourceBytes: job.SourceBytes,
        Limiter:     config.Limiter,
        Progress:    config.Progress,
        Timeout:     config.Timeout,
        Sparse:      config.Sparse,
    })
    result.Ops = ops
    result.Err = err

    if err == nil {
        return nil
    }
    if isSystemic(err) {
        return errors.Wrapf(err, "aborting batch at %v", job.Path)
    }

    log.WithFields(log.Fields{
        "path":        job.Path,
        "recoverable": delta.IsRecoverable(err),
    }).WithError(err).Warn("delta pass failed")
    return nil
}

// isSystemic reports errors that would repeat on every file.
func isSystemic(err error) bool {
    switch errors.Cause(err) {
    case delta.ErrTimeout,
        delta.ErrMissingSource,
        delta.ErrMissingDest,
        delta.ErrMissingIndex,
        delta.ErrMissingAlgorithm,
        signature.ErrDigestLengthMismatch:
        return true
    }
    return false
}
