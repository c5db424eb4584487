/*
 * Package patcher replays a delta operation stream on the receiving side:
 * copy operations pull blocks out of the local basis, literal operations
 * drain bytes from the transmitted literal stream, and the destination is
 * written strictly in operation order. The literal stream is whatever the
 * sender's codec produced, already reinflated by the caller.
 */
package patcher

import (
    "io"

    "github.com/pkg/errors"
    log "github.com/sirupsen/logrus"

    "github.com/oferchen/deltasync/delta"
)

// defaultBufferLen bounds one basis or literal read during apply.
const defaultBufferLen = 32 * 1024

var (
    // ErrMissingBasis is returned when a copy operation arrives without a
    // basis to copy from.
    ErrMissingBasis = errors.New("operation stream references a basis that was not provided")

    // ErrShortBasis is returned when the basis ends inside a copied block.
    ErrShortBasis = errors.New("basis ended before a copy operation's expected length")

    // ErrShortLiterals is returned when the literal stream ends early.
    ErrShortLiterals = errors.New("literal stream ended before an operation's expected length")

    // ErrMissingDest rejects a configuration without a destination.
    ErrMissingDest = errors.New("patch config needs a destination writer")
)

// Config carries one file's reconstruction inputs.
type Config struct {
    // Path names the file in logs.
    Path string

    Ops      []delta.Op
    Basis    io.ReadSeeker // required only when Ops contains copies
    Literals io.Reader     // required only when Ops contains literal runs
    Dest     io.Writer

    BufferLen int
}

/*
 * Apply reconstructs the target from the operation stream and returns the
 * number of bytes written. Operations run to completion in order; a failed
 * operation aborts the apply with the destination left partially written.
 */
func Apply(config Config) (uint64, error) {
    if config.Dest == nil {
        return 0, ErrMissingDest
    }

    bufferLen := config.BufferLen
    if bufferLen <= 0 {
        bufferLen = defaultBufferLen
    }

    var (
        buffer  = make([]byte, bufferLen)
        written = uint64(0)
    )
    for i, op := range config.Ops {
        var err error
        switch op.Kind {
        case delta.OpCopyBlock:
            err = applyCopy(config, op, buffer)
        case delta.OpLiteral:
            err = applyLiteral(config, op, buffer)
        default:
            err = errors.Errorf("unknown operation kind %v", op.Kind)
        }
        if err != nil {
            return written, errors.Wrapf(err, "operation %v of %v", i, config.Path)
        }
        written += op.Length
    }

    log.WithFields(log.Fields{
        "path":    config.Path,
        "ops":     len(config.Ops),
        "written": written,
    }).Debug("patch applied")

    return written, nil
}

func applyCopy(config Config, op delta.Op, buffer []byte) error {
    if config.Basis == nil {
        return errors.Wrapf(ErrMissingBasis, "block %v", op.BlockIndex)
    }
    if _, err := config.Basis.Seek(int64(op.BasisOffset), io.SeekStart); err != nil {
        return errors.Wrapf(err, "seek basis to offset %v", op.BasisOffset)
    }

    remaining := op.Length
    for remaining > 0 {
        chunk := buffer
        if remaining < uint64(len(chunk)) {
            chunk = chunk[:remaining]
        }
        if _, err := io.ReadFull(config.Basis, chunk); err != nil {
            if err == io.EOF || err == io.ErrUnexpectedEOF {
                return errors.Wrapf(ErrShortBasis, "block %v short by %v bytes",
                    op.BlockIndex, remaining)
            }
            return errors.Wrapf(err, "read basis block %v", op.BlockIndex)
        }
        if _, err := config.Dest.Write(chunk); err != nil {
            return errors.Wrap(err, "write to destination")
        }
        remaining -= uint64(len(chunk))
    }
    return nil
}

func applyLiteral(config Config, op delta.Op, buffer []byte) error {
    if config.Literals == nil {
        return ErrShortLiterals
    }

    remaining := op.Length
    for remaining > 0 {
        chunk := buffer
        if remaining < uint64(len(chunk)) {
            chunk = chunk[:remaining]
        }
        if _, err := io.ReadFull(config.Literals, chunk); err != nil {
            if err == io.EOF || err == io.ErrUnexpectedEOF {
                return errors.Wrapf(ErrShortLiterals, "short by %v bytes", remaining)
            }
            return errors.Wrap(err, "read literal stream")
        }
        if _, err := config.Dest.Write(chunk); err != nil {
            return errors.Wrap(err, "write to destination")
        }
        remaining -= uint64(len(chunk))
    }
    return nil
}
