package delta

import (
    "io"

    "github.com/pkg/errors"
)

// sparseRunMin is the shortest all-zero run worth a hole instead of a write.
const sparseRunMin = 512

/*
 * chunkWriter lands reconstructed bytes on the destination. With a seekable
 * destination and sparse mode on, sufficiently long zero runs become seeks so
 * existing holes are preserved and new ones created. Holes are materialized
 * lazily; Finish settles a trailing hole by writing its final byte, since a
 * bare seek past end-of-file does not extend the file.
 */
type chunkWriter struct {
    dest        io.Writer
    seeker      io.Seeker // nil disables sparse writing
    pendingHole int64
}

func newChunkWriter(dest io.Writer, sparse bool) *chunkWriter {
    w := &chunkWriter{dest: dest}
    if sparse {
        if seeker, ok := dest.(io.Seeker); ok {
            w.seeker = seeker
        }
    }
    return w
}

func (w *chunkWriter) Write(chunk []byte) error {
    if w.seeker == nil {
        return w.write(chunk)
    }

    for len(chunk) > 0 {
        run := zeroPrefix(chunk)
        if run >= sparseRunMin {
            w.pendingHole += int64(run)
            chunk = chunk[run:]
            continue
        }

        data := run + dataPrefix(chunk[run:])
        if err := w.settleHole(); err != nil {
            return err
        }
        if err := w.write(chunk[:data]); err != nil {
            return err
        }
        chunk = chunk[data:]
    }
    return nil
}

// Finish materializes a trailing hole so the file reaches its full length.
func (w *chunkWriter) Finish() error {
    if w.pendingHole == 0 {
        return nil
    }
    if _, err := w.seeker.Seek(w.pendingHole-1, io.SeekCurrent); err != nil {
        return errors.Wrap(err, "seek to end of trailing hole")
    }
    w.pendingHole = 0
    return w.write([]byte{0})
}

func (w *chunkWriter) write(chunk []byte) error {
    if len(chunk) == 0 {
        return nil
    }
    _, err := w.dest.Write(chunk)
    return errors.Wrap(err, "write to destination")
}

func (w *chunkWriter) settleHole() error {
    if w.pendingHole == 0 {
        return nil
    }
    if _, err := w.seeker.Seek(w.pendingHole, io.SeekCurrent); err != nil {
        return errors.Wrap(err, "seek across zero run")
    }
    w.pendingHole = 0
    return nil
}

// zeroPrefix counts leading zero bytes.
func zeroPrefix(chunk []byte) int {
    for i, b := range chunk {
        if b != 0 {
            return i
        }
    }
    return len(chunk)
}

// dataPrefix counts leading bytes up to the next zero run long enough to
// punch a hole.
func dataPrefix(chunk []byte) int {
    run := 0
    for i, b := range chunk {
        if b == 0 {
            run++
            if run >= sparseRunMin {
                return i + 1 - run
            }
        } else {
            run = 0
        }
    }
    return len(chunk)
}
