/*
 * Package delta turns a source stream plus a basis signature into the
 * reconstruction recipe: copy instructions for basis blocks the source still
 * contains and literal runs for everything else. One pass, one byte at a
 * time - the window slides with an O(1) checksum roll, the match index is
 * consulted at every position, and unmatched bytes drain into the literal
 * path where compression accounting and bandwidth pacing live.
 */
package delta

import (
    "bufio"
    "io"
    "time"

    "github.com/pkg/errors"
    log "github.com/sirupsen/logrus"

    "github.com/oferchen/deltasync/bandwidth"
    "github.com/oferchen/deltasync/circularbuffer"
    "github.com/oferchen/deltasync/compress"
    "github.com/oferchen/deltasync/index"
    "github.com/oferchen/deltasync/progress"
    "github.com/oferchen/deltasync/rollsum"
    "github.com/oferchen/deltasync/signature"
    "github.com/oferchen/deltasync/strongsum"
)

// defaultCopyBufferLen bounds one read while copying a matched block.
const defaultCopyBufferLen = 32 * 1024

var (
    // ErrTimeout is returned when a pass overruns its deadline. Fatal and
    // systemic - retrying the same file is pointless.
    ErrTimeout = errors.New("delta pass exceeded its deadline")

    // ErrBasisUnavailable is returned when the basis cannot be read at the
    // moment a matched block must be copied. Recoverable - the caller may
    // fall back to a whole-file transfer.
    ErrBasisUnavailable = errors.New("basis unavailable for matched block copy")

    // ErrShrunkBasis is returned when the basis ends before a matched
    // block's expected length. Fatal - the basis changed under the pass.
    ErrShrunkBasis = errors.New("basis ended inside a matched block")

    // ErrMissingSource and friends reject incomplete configurations.
    ErrMissingSource    = errors.New("delta config needs a source reader")
    ErrMissingDest      = errors.New("delta config needs a destination writer")
    ErrMissingIndex     = errors.New("delta config needs a block match index")
    ErrMissingAlgorithm = errors.New("delta config needs a strong digest algorithm")
)

// IsRecoverable reports whether the caller may retry the file with a
// different strategy rather than failing the run.
func IsRecoverable(err error) bool {
    return errors.Cause(err) == ErrBasisUnavailable
}

// Config carries everything one delta pass needs. Source, Dest, Index and
// Algorithm are required; the rest defaults to off.
type Config struct {
    // Path names the file in progress reports and logs.
    Path string

    Source    io.Reader
    Basis     io.ReadSeeker // may be nil when the index holds no blocks
    Dest      io.Writer
    Index     *index.BlockMatchIndex
    Algorithm strongsum.Algorithm

    // SourceBytes sizes progress reporting; zero means unknown.
    SourceBytes uint64

    Compressor compress.Compressor
    Limiter    *bandwidth.Limiter
    Progress   progress.Sink

    // Timeout bounds the whole pass; zero disables the check.
    Timeout time.Duration

    // Sparse turns long zero runs into seeks on seekable destinations.
    Sparse bool

    CopyBufferLen int
    FlushLen      int
}

type state int

const (
    stateFilling state = iota
    stateScanning
    stateMatchedFlush
    stateLiteralFlush
    stateDone
)

type generator struct {
    config   Config
    layout   signature.Layout
    source   *bufio.Reader
    window   *circularbuffer.Ring
    rolling  *rollsum.RollingChecksum
    sink     *literalSink
    writer   *chunkWriter
    tracker  *progress.Tracker
    copyBuf  []byte
    deadline time.Time

    state        state
    pendingMatch signature.Block
    ops          []Op
    literalBytes uint64
    matchedBytes uint64
    scratch      [1]byte
}

/*
 * Generate runs one complete delta pass and returns the emitted operations
 * in source order. The destination receives the reconstructed bytes as a
 * side effect: literal runs verbatim, matched blocks copied out of the
 * basis.
 */
func Generate(config Config) ([]Op, error) {
    if config.Source == nil {
        return nil, ErrMissingSource
    }
    if config.Dest == nil {
        return nil, ErrMissingDest
    }
    if config.Index == nil {
        return nil, ErrMissingIndex
    }
    if config.Algorithm == nil {
        return nil, ErrMissingAlgorithm
    }

    layout := config.Index.Layout()
    if layout.BlockLength == 0 {
        return nil, signature.ErrZeroBlockLength
    }
    if int(layout.StrongSumLength) > config.Algorithm.DigestLen() {
        return nil, errors.Wrapf(signature.ErrDigestLengthMismatch,
            "index wants %v strong bytes, %s digests are %v bytes",
            layout.StrongSumLength, config.Algorithm.Name(), config.Algorithm.DigestLen())
    }

    window, err := circularbuffer.MakeRing(int(layout.BlockLength))
    if err != nil {
        return nil, err
    }

    copyBufferLen := config.CopyBufferLen
    if copyBufferLen <= 0 {
        copyBufferLen = defaultCopyBufferLen
    }

    var (
        writer  = newChunkWriter(config.Dest, config.Sparse)
        tracker = progress.NewTracker(config.Path, config.SourceBytes, config.Progress)
        g       = &generator{
            config:  config,
            layout:  layout,
            source:  bufio.NewReader(config.Source),
            window:  window,
            rolling: rollsum.NewRollingChecksum(),
            writer:  writer,
            tracker: tracker,
            sink: newLiteralSink(
                writer, config.Compressor, config.Limiter, tracker, config.FlushLen),
            copyBuf: make([]byte, copyBufferLen),
        }
    )
    if config.Timeout > 0 {
        g.deadline = time.Now().Add(config.Timeout)
    }

    log.WithFields(log.Fields{
        "path":         config.Path,
        "block_length": layout.BlockLength,
        "blocks":       config.Index.BlockCount,
    }).Debug("delta pass starting")

    if err := g.run(); err != nil {
        return nil, err
    }

    log.WithFields(log.Fields{
        "path":    config.Path,
        "ops":     len(g.ops),
        "literal": g.literalBytes,
        "matched": g.matchedBytes,
    }).Debug("delta pass complete")

    return g.ops, nil
}

func (g *generator) run() error {
    for g.state != stateDone {
        if !g.deadline.IsZero() && time.Now().After(g.deadline) {
            return errors.Wrapf(ErrTimeout, "%v", g.config.Path)
        }

        var err error
        switch g.state {
        case stateFilling:
            err = g.fill()
        case stateScanning:
            err = g.scan()
        case stateMatchedFlush:
            err = g.flushMatch()
        case stateLiteralFlush:
            err = g.flushTail()
        }
        if err != nil {
            return err
        }
    }
    return nil
}

// fill grows the window one byte at a time until it spans a full block.
func (g *generator) fill() error {
    b, err := g.source.ReadByte()
    if err == io.EOF {
        g.state = stateLiteralFlush
        return nil
    }
    if err != nil {
        return errors.Wrapf(err, "read source %v", g.config.Path)
    }

    g.scratch[0] = b
    g.window.Write(g.scratch[:1])
    g.rolling.Update(g.scratch[:1])

    if g.window.Len() == g.window.Capacity() {
        g.state = stateScanning
    }
    return nil
}

/*
 * scan is the steady state: one match probe per window position. The weak
 * probe runs on every byte; the window is only materialized and strong
 * hashed on a weak hit, keeping the per-byte cost independent of the block
 * length. A miss retires the window's oldest byte to the literal run - once
 * the window has slid past a byte it can never open a future match - and
 * rolls the next source byte in.
 */
func (g *generator) scan() error {
    if candidates := g.config.Index.FindWeak(g.rolling.Value()); len(candidates) > 0 {
        strong := g.config.Algorithm.ComputeFull(g.window.GetBlock())
        verified := candidates.FindStrong(strong[:g.layout.StrongSumLength], g.window.Len())
        if len(verified) > 0 {
            g.pendingMatch = verified[0]
            g.state = stateMatchedFlush
            return nil
        }
    }

    incoming, err := g.source.ReadByte()
    if err == io.EOF {
        g.state = stateLiteralFlush
        return nil
    }
    if err != nil {
        return errors.Wrapf(err, "read source %v", g.config.Path)
    }

    g.scratch[0] = incoming
    g.window.Write(g.scratch[:1])
    evicted := g.window.Evicted()
    if err := g.sink.push(evicted...); err != nil {
        return err
    }
    return g.rolling.Roll(evicted[0], incoming)
}

// flushMatch closes the literal run ahead of the match, copies the matched
// block out of the basis, and restarts the window after it.
func (g *generator) flushMatch() error {
    if err := g.closeLiteralRun(); err != nil {
        return err
    }

    if err := g.copyMatchedBlock(g.pendingMatch); err != nil {
        return err
    }

    length := uint64(g.layout.BlockSize(g.pendingMatch.Index))
    g.ops = append(g.ops, Op{
        Kind:        OpCopyBlock,
        BlockIndex:  g.pendingMatch.Index,
        BasisOffset: g.layout.BlockOffset(g.pendingMatch.Index),
        Length:      length,
    })
    g.matchedBytes += length

    g.window.Reset()
    g.rolling.Reset()
    g.state = stateFilling
    return nil
}

// flushTail drains the window into the final literal run and finishes the
// pass: compressor tail first, then any trailing destination hole.
func (g *generator) flushTail() error {
    if !g.window.Empty() {
        if err := g.sink.push(g.window.GetBlock()...); err != nil {
            return err
        }
        g.window.Reset()
        g.rolling.Reset()
    }
    if err := g.closeLiteralRun(); err != nil {
        return err
    }
    if err := g.sink.finalize(); err != nil {
        return err
    }
    if err := g.writer.Finish(); err != nil {
        return err
    }
    g.state = stateDone
    return nil
}

func (g *generator) closeLiteralRun() error {
    length, err := g.sink.closeRun()
    if err != nil {
        return err
    }
    if length > 0 {
        g.ops = append(g.ops, Op{Kind: OpLiteral, Length: length})
        g.literalBytes += length
    }
    return nil
}

/*
 * copyMatchedBlock streams one basis block to the destination through the
 * bounded copy buffer. The basis going missing here is recoverable - the
 * caller can restart without a basis - but a basis that got shorter is not:
 * a short copy would silently corrupt the reconstruction.
 */
func (g *generator) copyMatchedBlock(match signature.Block) error {
    if g.config.Basis == nil {
        return errors.Wrapf(ErrBasisUnavailable, "block %v of %v", match.Index, g.config.Path)
    }

    offset := g.layout.BlockOffset(match.Index)
    if _, err := g.config.Basis.Seek(int64(offset), io.SeekStart); err != nil {
        return errors.Wrapf(ErrBasisUnavailable,
            "seek to block %v at offset %v of %v: %v", match.Index, offset, g.config.Path, err)
    }

    remaining := int(g.layout.BlockSize(match.Index))
    for remaining > 0 {
        if !g.deadline.IsZero() && time.Now().After(g.deadline) {
            return errors.Wrapf(ErrTimeout, "%v", g.config.Path)
        }

        chunk := g.copyBuf
        if remaining < len(chunk) {
            chunk = chunk[:remaining]
        }
        if _, err := io.ReadFull(g.config.Basis, chunk); err != nil {
            if err == io.EOF || err == io.ErrUnexpectedEOF {
                return errors.Wrapf(ErrShrunkBasis,
                    "block %v of %v short by %v bytes", match.Index, g.config.Path, remaining)
            }
            return errors.Wrapf(err, "read basis block %v of %v", match.Index, g.config.Path)
        }
        if err := g.writer.Write(chunk); err != nil {
            return err
        }
        g.tracker.Account(len(chunk), 0)
        remaining -= len(chunk)
    }
    return nil
}
