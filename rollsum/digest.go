package rollsum

import (
    "encoding/binary"
    "io"

    "github.com/pkg/errors"
)

// DigestWireLen is the packed on-the-wire size of a rolling digest.
const DigestWireLen = 4

// ErrDigestSliceLength is returned when a wire slice is not exactly
// DigestWireLen bytes.
var ErrDigestSliceLength = errors.New("rolling digest wire slice must be 4 bytes")

// RollingDigest is an immutable snapshot of a rolling checksum: the two 16-bit
// components plus the number of bytes that produced them.
type RollingDigest struct {
    s1, s2 uint16
    length int
}

// ZeroDigest is the canonical digest of an empty window.
var ZeroDigest = RollingDigest{}

func NewRollingDigest(s1, s2 uint16, length int) RollingDigest {
    return RollingDigest{s1: s1, s2: s2, length: length}
}

// DigestOfBytes computes the digest of a byte slice through a throwaway
// checksum, the one-off path used when no live accumulator is at hand.
func DigestOfBytes(window []byte) RollingDigest {
    var r RollingChecksum
    r.Update(window)
    return r.Digest()
}

// DigestFromValue unpacks the 32-bit wire representation. The contributing
// length is not on the wire, so the caller supplies it.
func DigestFromValue(value uint32, length int) RollingDigest {
    return RollingDigest{
        s1:     uint16(value),
        s2:     uint16(value >> 16),
        length: length,
    }
}

// DigestFromLEBytes decodes the little-endian wire form.
func DigestFromLEBytes(wire [DigestWireLen]byte, length int) RollingDigest {
    return DigestFromValue(binary.LittleEndian.Uint32(wire[:]), length)
}

// DigestFromLESlice decodes a wire slice, rejecting any length other than
// DigestWireLen.
func DigestFromLESlice(wire []byte, length int) (RollingDigest, error) {
    if len(wire) != DigestWireLen {
        return ZeroDigest, errors.Wrapf(ErrDigestSliceLength, "got %v bytes", len(wire))
    }
    return DigestFromValue(binary.LittleEndian.Uint32(wire), length), nil
}

// Value returns the packed 32-bit representation: s2 in the high half, s1 in
// the low half.
func (d RollingDigest) Value() uint32 {
    return (uint32(d.s2) << 16) | uint32(d.s1)
}

func (d RollingDigest) Sum1() uint16 {
    return d.s1
}

func (d RollingDigest) Sum2() uint16 {
    return d.s2
}

// Len is the number of bytes that contributed to the digest.
func (d RollingDigest) Len() int {
    return d.length
}

func (d RollingDigest) Empty() bool {
    return d.length == 0
}

// ToLEBytes serialises the digest in the little-endian wire order.
func (d RollingDigest) ToLEBytes() [DigestWireLen]byte {
    var wire [DigestWireLen]byte
    binary.LittleEndian.PutUint32(wire[:], d.Value())
    return wire
}

// PutLEBytes writes the wire form into out, which must be exactly
// DigestWireLen bytes. The buffer is untouched on error.
func (d RollingDigest) PutLEBytes(out []byte) error {
    if len(out) != DigestWireLen {
        return errors.Wrapf(ErrDigestSliceLength, "got %v bytes", len(out))
    }
    binary.LittleEndian.PutUint32(out, d.Value())
    return nil
}

// WriteLETo writes the wire form to w.
func (d RollingDigest) WriteLETo(w io.Writer) error {
    wire := d.ToLEBytes()
    _, err := w.Write(wire[:])
    return errors.Wrap(err, "write rolling digest")
}

// ReadLEFrom reads one wire-form digest from r. Short reads surface as
// io.ErrUnexpectedEOF.
func ReadLEFrom(r io.Reader, length int) (RollingDigest, error) {
    var wire [DigestWireLen]byte
    if _, err := io.ReadFull(r, wire[:]); err != nil {
        return ZeroDigest, errors.Wrap(err, "read rolling digest")
    }
    return DigestFromLEBytes(wire, length), nil
}
