/*
 * Package rollsum implements the weak rolling checksum used to find candidate
 * matching blocks - a checksum that is efficient to advance one byte at a time.
 * It follows the classic rsync formulation: s1 accumulates the byte sum and s2
 * accumulates the running prefix sums, both truncated to 16 bits, packed on the
 * wire as (s2<<16)|s1 in little-endian order.
 *
 * The checksum is deliberately weak: equal digests are only a hint that two
 * windows might match, and every candidate must be confirmed with a strong
 * digest before being trusted.
 */
package rollsum

import (
    "io"
    "syscall"

    "github.com/pkg/errors"
)

const (
    // DefaultReaderBufferLen is the scratch buffer size used by UpdateReader.
    DefaultReaderBufferLen = 32 * 1024

    mask16 = 0xffff
)

var (
    // ErrEmptyWindow is returned by Roll when no bytes are in the window.
    ErrEmptyWindow = errors.New("cannot roll an empty window")

    // ErrWindowTooLarge is returned by Roll when the window length exceeds the
    // range of the positional-weight arithmetic.
    ErrWindowTooLarge = errors.New("window length exceeds uint32 range")

    // ErrMismatchedSliceLength is returned by RollMany when the outgoing and
    // incoming slices differ in length.
    ErrMismatchedSliceLength = errors.New("outgoing and incoming slices differ in length")

    // ErrEmptyReaderBuffer is returned by UpdateReaderWithBuffer for a
    // zero-length scratch buffer.
    ErrEmptyReaderBuffer = errors.New("reader scratch buffer must not be empty")
)

// RollingChecksum holds the mutable accumulator state. It is not safe for
// concurrent use; one instance belongs to exactly one scan or block.
type RollingChecksum struct {
    s1, s2 uint32
    length int
}

func NewRollingChecksum() *RollingChecksum {
    return &RollingChecksum{}
}

// FromDigest reconstructs checksum state from a previously captured digest.
func FromDigest(d RollingDigest) *RollingChecksum {
    return &RollingChecksum{
        s1:     uint32(d.s1),
        s2:     uint32(d.s2),
        length: d.length,
    }
}

// Reset returns to the empty-window state. No storage is released.
func (r *RollingChecksum) Reset() {
    r.s1, r.s2 = 0, 0
    r.length = 0
}

// Len reports how many bytes currently contribute to the checksum.
func (r *RollingChecksum) Len() int {
    return r.length
}

func (r *RollingChecksum) Empty() bool {
    return r.length == 0
}

/*
 * Update absorbs chunk into the window. Absorbing a whole window through one
 * Update is byte-for-byte equivalent to absorbing it through any sequence of
 * smaller Updates; the first window of a scan and every signature block are
 * seeded this way.
 */
func (r *RollingChecksum) Update(chunk []byte) {
    var (
        s1 = r.s1
        s2 = r.s2
        i  int
    )

    // unrolled by four, the way the reference implementations consume blocks
    for ; i+4 <= len(chunk); i += 4 {
        s1 += uint32(chunk[i])
        s2 += s1
        s1 += uint32(chunk[i+1])
        s2 += s1
        s1 += uint32(chunk[i+2])
        s2 += s1
        s1 += uint32(chunk[i+3])
        s2 += s1
    }
    for ; i < len(chunk); i++ {
        s1 += uint32(chunk[i])
        s2 += s1
    }

    r.s1 = s1 & mask16
    r.s2 = s2 & mask16
    r.length += len(chunk)
}

// UpdateVectored absorbs a scatter/gather list of buffers, equivalent to
// calling Update on each buffer in order.
func (r *RollingChecksum) UpdateVectored(buffers [][]byte) {
    for _, b := range buffers {
        r.Update(b)
    }
}

/*
 * UpdateReaderWithBuffer streams the reader's remaining bytes through the
 * checksum using the caller's scratch buffer, returning the byte count
 * consumed. Transient interruptions (EINTR) are retried rather than surfaced.
 */
func (r *RollingChecksum) UpdateReaderWithBuffer(reader io.Reader, buffer []byte) (int64, error) {
    if len(buffer) == 0 {
        return 0, ErrEmptyReaderBuffer
    }

    var total int64
    for {
        n, err := reader.Read(buffer)
        if n > 0 {
            r.Update(buffer[:n])
            total += int64(n)
        }
        if err == io.EOF {
            return total, nil
        }
        if err != nil {
            if errors.Is(err, syscall.EINTR) {
                continue
            }
            return total, errors.Wrap(err, "rolling checksum read")
        }
        if n == 0 {
            return total, nil
        }
    }
}

// UpdateReader is UpdateReaderWithBuffer with an internally allocated buffer.
func (r *RollingChecksum) UpdateReader(reader io.Reader) (int64, error) {
    return r.UpdateReaderWithBuffer(reader, make([]byte, DefaultReaderBufferLen))
}

// SetWindow clears the state and absorbs block, the per-block generation path.
func (r *RollingChecksum) SetWindow(block []byte) {
    r.Reset()
    r.Update(block)
}

func (r *RollingChecksum) windowLen() (uint32, error) {
    if r.length == 0 {
        return 0, ErrEmptyWindow
    }
    if uint64(r.length) > uint64(^uint32(0)) {
        return 0, errors.Wrapf(ErrWindowTooLarge, "window length %v", r.length)
    }
    return uint32(r.length), nil
}

/*
 * Roll slides the window one byte: outgoing leaves the front, incoming joins
 * the back, the window length stays fixed. O(1) by construction - the scanner
 * calls this once per input byte. State is unchanged on failure.
 */
func (r *RollingChecksum) Roll(outgoing, incoming byte) error {
    window, err := r.windowLen()
    if err != nil {
        return err
    }

    s1 := (r.s1 - uint32(outgoing) + uint32(incoming)) & mask16
    s2 := (r.s2 - window*uint32(outgoing) + s1) & mask16

    r.s1, r.s2 = s1, s2
    return nil
}

// RollMany applies Roll for each paired byte of outgoing and incoming. The
// slices must be the same length; state is unchanged on failure.
func (r *RollingChecksum) RollMany(outgoing, incoming []byte) error {
    if len(outgoing) != len(incoming) {
        return errors.Wrapf(ErrMismatchedSliceLength, "outgoing %v incoming %v",
            len(outgoing), len(incoming))
    }
    window, err := r.windowLen()
    if err != nil {
        return err
    }
    if len(outgoing) == 0 {
        return nil
    }

    // validated above; fused loop cannot fail past this point
    var (
        s1 = r.s1
        s2 = r.s2
    )
    for i := range outgoing {
        s1 = (s1 - uint32(outgoing[i]) + uint32(incoming[i])) & mask16
        s2 = (s2 - window*uint32(outgoing[i]) + s1) & mask16
    }
    r.s1, r.s2 = s1, s2
    return nil
}

// Value returns the packed 32-bit wire representation.
func (r *RollingChecksum) Value() uint32 {
    return (r.s2 << 16) | r.s1
}

// Digest snapshots the current state without consuming it.
func (r *RollingChecksum) Digest() RollingDigest {
    return RollingDigest{
        s1:     uint16(r.s1),
        s2:     uint16(r.s2),
        length: r.length,
    }
}
