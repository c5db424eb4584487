package signature

import (
    "io"
    "math"

    "github.com/pkg/errors"

    "github.com/oferchen/deltasync/merkle"
    "github.com/oferchen/deltasync/rollsum"
    "github.com/oferchen/deltasync/strongsum"
)

var (
    // ErrTooManyBlocks is returned before any allocation when a layout's
    // block count cannot be addressed on this platform.
    ErrTooManyBlocks = errors.New("block count exceeds addressable memory")

    // ErrTrailingData is returned when the basis yields bytes beyond the
    // layout's expected total - the file grew while being read.
    ErrTrailingData = errors.New("basis file has trailing data beyond the signature layout")

    // ErrMissingData is returned when the basis ends before the layout's
    // expected total - the file shrank while being read.
    ErrMissingData = errors.New("basis file ended before the signature layout total")
)

// Block is the signature of one basis-file block.
type Block struct {
    // Index is the 0-based block number.
    Index uint64

    // Rolling is the block's weak digest.
    Rolling rollsum.RollingDigest

    // Strong is the block's full strong digest truncated to the layout's
    // StrongSumLength.
    Strong []byte
}

// FileSignature is the complete, read-only description of a basis file.
type FileSignature struct {
    Layout     Layout
    Blocks     []Block
    TotalBytes uint64
}

/*
 * Generate reads the basis strictly in block-length chunks (the final chunk
 * sized to the remainder when nonzero) and computes one weak and one truncated
 * strong digest per chunk. The reader must hold exactly the layout's total:
 * a short read is ErrMissingData and any byte past the total is
 * ErrTrailingData, both fatal - a basis that changed size mid-generation can
 * not be described truthfully.
 */
func Generate(reader io.Reader, layout Layout, algorithm strongsum.Algorithm) (*FileSignature, error) {
    if layout.BlockLength == 0 {
        return nil, ErrZeroBlockLength
    }
    if layout.StrongSumLength == 0 {
        return nil, ErrZeroStrongSumLength
    }
    if int(layout.StrongSumLength) > algorithm.DigestLen() {
        return nil, errors.Wrapf(ErrDigestLengthMismatch,
            "layout wants %v bytes, %s digests are %v bytes",
            layout.StrongSumLength, algorithm.Name(), algorithm.DigestLen())
    }
    if layout.BlockCount > uint64(math.MaxInt)/2 {
        return nil, errors.Wrapf(ErrTooManyBlocks, "%v blocks", layout.BlockCount)
    }

    var (
        blocks  = make([]Block, 0, layout.BlockCount)
        buffer  = make([]byte, layout.BlockLength)
        rolling = rollsum.NewRollingChecksum()
    )

    for index := uint64(0); index < layout.BlockCount; index++ {
        chunk := buffer[:layout.BlockSize(index)]
        if _, err := io.ReadFull(reader, chunk); err != nil {
            if err == io.EOF || err == io.ErrUnexpectedEOF {
                return nil, errors.Wrapf(ErrMissingData, "block %v", index)
            }
            return nil, errors.Wrapf(err, "read basis block %v", index)
        }

        rolling.SetWindow(chunk)

        full := algorithm.ComputeFull(chunk)
        strong := make([]byte, layout.StrongSumLength)
        copy(strong, full)

        blocks = append(blocks, Block{
            Index:   index,
            Rolling: rolling.Digest(),
            Strong:  strong,
        })
    }

    // the layout promised this was everything
    var probe [1]byte
    if n, err := reader.Read(probe[:]); n > 0 {
        return nil, ErrTrailingData
    } else if err != nil && err != io.EOF {
        return nil, errors.Wrap(err, "probe for trailing basis data")
    }

    return &FileSignature{
        Layout:     layout,
        Blocks:     blocks,
        TotalBytes: layout.TotalBytes(),
    }, nil
}

// StrongSums returns the ordered truncated strong digests, the leaf list for
// the signature's merkle root.
func (f *FileSignature) StrongSums() [][]byte {
    hashes := make([][]byte, 0, len(f.Blocks))
    for i := range f.Blocks {
        hashes = append(hashes, f.Blocks[i].Strong)
    }
    return hashes
}

// RootHash computes the merkle root over the block strong sums.
func (f *FileSignature) RootHash(algorithm strongsum.Algorithm) ([]byte, error) {
    return merkle.HashFromHashes(f.StrongSums(), algorithm)
}

// VerifyRoot recomputes the root and compares it against a reference root
// received alongside the signature.
func (f *FileSignature) VerifyRoot(reference []byte, algorithm strongsum.Algorithm) error {
    return merkle.Verify(f.StrongSums(), reference, algorithm)
}
