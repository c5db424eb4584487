package signature

import (
    "encoding/binary"
    "io"
    "math"

    "github.com/pkg/errors"

    "github.com/oferchen/deltasync/rollsum"
)

/*
 * Wire format, bit-exact with the protocol's sum head:
 *
 *   varint block_count
 *   varint block_length
 *   varint strong_sum_length
 *   varint remainder
 *   per block: 4-byte little-endian packed weak digest (s1 low, s2 high),
 *              then exactly strong_sum_length raw strong-digest bytes
 *
 * The varint encoding is the protocol's own: a leading byte whose high bits
 * say how many little-endian continuation bytes follow, with the leading
 * byte's low bits contributing the most significant payload bits.
 */

var (
    // ErrHeaderCorrupt is returned when a decoded header fails validation.
    ErrHeaderCorrupt = errors.New("signature header failed validation")

    // ErrVarintOverflow is returned for a varint wider than 32 bits.
    ErrVarintOverflow = errors.New("varint exceeds 32-bit range")

    // ErrVarintRange is returned when a value cannot be varint-encoded.
    ErrVarintRange = errors.New("value exceeds varint range")
)

// varintExtra maps the top six bits of a leading byte to the number of
// continuation bytes. Values 5 and 6 belong to the 64-bit long form, which
// the sum head never uses.
var varintExtra = [64]byte{
    0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
    0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
    1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
    2, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 5, 6,
}

func writeVarint(w io.Writer, value uint32) error {
    if value > math.MaxInt32 {
        return errors.Wrapf(ErrVarintRange, "%v", value)
    }

    var b [5]byte
    binary.LittleEndian.PutUint32(b[1:], value)

    cnt := 4
    for cnt > 1 && b[cnt] == 0 {
        cnt--
    }
    bit := byte(1) << (8 - cnt)
    if b[cnt] >= bit {
        cnt++
        b[0] = ^(bit - 1)
    } else if cnt > 1 {
        b[0] = b[cnt] | ^(bit*2 - 1)
    } else {
        b[0] = b[1]
    }

    _, err := w.Write(b[:cnt])
    return errors.Wrap(err, "write varint")
}

func readVarint(r io.Reader) (uint32, error) {
    var lead [1]byte
    if _, err := io.ReadFull(r, lead[:]); err != nil {
        return 0, errors.Wrap(err, "read varint lead byte")
    }

    extra := int(varintExtra[lead[0]>>2])
    if extra == 0 {
        return uint32(lead[0]), nil
    }
    if extra > 4 {
        return 0, ErrVarintOverflow
    }

    var payload [5]byte
    if _, err := io.ReadFull(r, payload[:extra]); err != nil {
        return 0, errors.Wrap(err, "read varint payload")
    }
    payload[extra] = lead[0] & byte((1<<(8-extra))-1)

    value := binary.LittleEndian.Uint32(payload[:4])
    if extra == 4 && payload[4] != 0 {
        return 0, ErrVarintOverflow
    }
    return value, nil
}

/*
 * WriteTo serialises the signature. Every block's stored strong digest is
 * re-validated against the header's declared length before any of its bytes
 * hit the wire; a mismatch aborts the write rather than padding or truncating
 * silently.
 */
func (f *FileSignature) WriteTo(w io.Writer) error {
    if f.Layout.BlockCount > math.MaxInt32 {
        return errors.Wrapf(ErrTooManyBlocks, "%v blocks", f.Layout.BlockCount)
    }

    if err := writeVarint(w, uint32(f.Layout.BlockCount)); err != nil {
        return err
    }
    if err := writeVarint(w, f.Layout.BlockLength); err != nil {
        return err
    }
    if err := writeVarint(w, uint32(f.Layout.StrongSumLength)); err != nil {
        return err
    }
    if err := writeVarint(w, f.Layout.Remainder); err != nil {
        return err
    }

    for i := range f.Blocks {
        block := &f.Blocks[i]
        if len(block.Strong) != int(f.Layout.StrongSumLength) {
            return errors.Wrapf(ErrDigestLengthMismatch,
                "block %v carries %v strong bytes, header declares %v",
                block.Index, len(block.Strong), f.Layout.StrongSumLength)
        }
        if err := block.Rolling.WriteLETo(w); err != nil {
            return errors.Wrapf(err, "block %v", block.Index)
        }
        if _, err := w.Write(block.Strong); err != nil {
            return errors.Wrapf(err, "write strong digest of block %v", block.Index)
        }
    }
    return nil
}

// ReadFrom decodes one signature from r, validating the header before any
// block allocation.
func ReadFrom(r io.Reader) (*FileSignature, error) {
    blockCount, err := readVarint(r)
    if err != nil {
        return nil, errors.Wrap(err, "signature block count")
    }
    blockLength, err := readVarint(r)
    if err != nil {
        return nil, errors.Wrap(err, "signature block length")
    }
    strongSumLength, err := readVarint(r)
    if err != nil {
        return nil, errors.Wrap(err, "signature strong sum length")
    }
    remainder, err := readVarint(r)
    if err != nil {
        return nil, errors.Wrap(err, "signature remainder")
    }

    if blockCount > 0 && blockLength == 0 {
        return nil, errors.Wrap(ErrHeaderCorrupt, "zero block length")
    }
    if strongSumLength == 0 || strongSumLength > 64 {
        return nil, errors.Wrapf(ErrHeaderCorrupt, "strong sum length %v", strongSumLength)
    }
    if blockLength > 0 && remainder >= blockLength {
        return nil, errors.Wrapf(ErrHeaderCorrupt, "remainder %v with block length %v",
            remainder, blockLength)
    }
    if uint64(blockCount) > uint64(math.MaxInt)/2 {
        return nil, errors.Wrapf(ErrTooManyBlocks, "%v blocks", blockCount)
    }

    layout := Layout{
        BlockLength:     blockLength,
        BlockCount:      uint64(blockCount),
        Remainder:       remainder,
        StrongSumLength: uint8(strongSumLength),
    }

    blocks := make([]Block, 0, blockCount)
    for index := uint64(0); index < layout.BlockCount; index++ {
        rolling, err := rollsum.ReadLEFrom(r, int(layout.BlockSize(index)))
        if err != nil {
            return nil, errors.Wrapf(err, "block %v", index)
        }
        strong := make([]byte, layout.StrongSumLength)
        if _, err := io.ReadFull(r, strong); err != nil {
            return nil, errors.Wrapf(err, "read strong digest of block %v", index)
        }
        blocks = append(blocks, Block{
            Index:   index,
            Rolling: rolling,
            Strong:  strong,
        })
    }

    return &FileSignature{
        Layout:     layout,
        Blocks:     blocks,
        TotalBytes: layout.TotalBytes(),
    }, nil
}
