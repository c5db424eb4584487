/*
 * Package signature describes a basis file as an ordered table of per-block
 * checksums: a weak rolling digest to propose matches cheaply and a truncated
 * strong digest to confirm them. The block length follows the protocol's
 * square-root heuristic so that signature size grows sublinearly with file
 * size, and the whole table round-trips through the protocol's wire encoding
 * byte for byte.
 */
package signature

import (
    "github.com/pkg/errors"

    "github.com/oferchen/deltasync/strongsum"
)

const (
    // DefaultBlockLength is used for files no larger than its own square.
    DefaultBlockLength uint32 = 700

    // MaxBlockLengthV30 caps block length for protocol 30 and newer (128 KiB).
    MaxBlockLengthV30 uint32 = 1 << 17

    // MaxBlockLengthOld caps block length for protocols before 30 (512 MiB).
    MaxBlockLengthOld uint32 = 1 << 29

    // MinBlockLength is the practical lower bound; the protocol does not
    // enforce it but smaller blocks cost more in signature than they save.
    MinBlockLength uint32 = 64

    // MaxStrongSumLength is the longest truncated strong sum the adaptive
    // heuristic will pick.
    MaxStrongSumLength uint8 = 16

    blocksumBias = 10
)

var (
    // ErrDigestLengthMismatch is returned when a requested strong-sum length
    // exceeds the digest width of the negotiated algorithm.
    ErrDigestLengthMismatch = errors.New("strong sum length exceeds digest width")

    // ErrZeroBlockLength is returned for a layout without a block length.
    ErrZeroBlockLength = errors.New("block length must be greater than zero")

    // ErrZeroStrongSumLength is returned for a layout without a strong sum.
    ErrZeroStrongSumLength = errors.New("strong sum length must be greater than zero")
)

// Layout fixes the geometry of one file's signature. Immutable once computed.
type Layout struct {
    BlockLength     uint32
    BlockCount      uint64
    Remainder       uint32 // bytes in the final short block, 0 if full
    StrongSumLength uint8
}

// TotalBytes reconstructs the basis file size the layout was derived from.
func (l Layout) TotalBytes() uint64 {
    if l.BlockCount == 0 {
        return 0
    }
    total := l.BlockCount * uint64(l.BlockLength)
    if l.Remainder > 0 {
        total -= uint64(l.BlockLength - l.Remainder)
    }
    return total
}

// BlockSize returns the length of block index, accounting for the short tail.
func (l Layout) BlockSize(index uint64) uint32 {
    if l.Remainder > 0 && index == l.BlockCount-1 {
        return l.Remainder
    }
    return l.BlockLength
}

// BlockOffset returns the basis-file offset of block index.
func (l Layout) BlockOffset(index uint64) uint64 {
    return index * uint64(l.BlockLength)
}

/*
 * CalculateLayout derives the signature geometry for a basis file.
 *
 * blockLengthOverride carries a caller-supplied block size (0 means none), in
 * which case only the protocol maximum is applied; otherwise the block length
 * approximates the square root of the file size, rounded down to a multiple
 * of eight and clamped between DefaultBlockLength and the protocol maximum.
 *
 * strongSumLength is the negotiated minimum. For protocol 27 and newer the
 * adaptive heuristic may lengthen it to keep the corruption probability flat
 * as files grow; the result never exceeds the algorithm's digest width. A
 * request already wider than the digest is a configuration error, never a
 * silent truncation.
 */
func CalculateLayout(
    totalBytes uint64,
    blockLengthOverride uint32,
    protocolVersion uint8,
    strongSumLength uint8,
    algorithm strongsum.Algorithm,
) (Layout, error) {
    if strongSumLength == 0 {
        return Layout{}, ErrZeroStrongSumLength
    }
    if int(strongSumLength) > algorithm.DigestLen() {
        return Layout{}, errors.Wrapf(ErrDigestLengthMismatch,
            "requested %v bytes, %s digests are %v bytes",
            strongSumLength, algorithm.Name(), algorithm.DigestLen())
    }

    blockLength := calculateBlockLength(totalBytes, protocolVersion, blockLengthOverride)
    strongLen := calculateStrongSumLength(totalBytes, blockLength, protocolVersion, strongSumLength)
    if int(strongLen) > algorithm.DigestLen() {
        strongLen = uint8(algorithm.DigestLen())
    }

    var (
        blockCount = uint64(0)
        remainder  = uint32(0)
    )
    if totalBytes > 0 {
        blockCount = totalBytes / uint64(blockLength)
        remainder = uint32(totalBytes % uint64(blockLength))
        if remainder > 0 {
            blockCount++
        }
    }

    return Layout{
        BlockLength:     blockLength,
        BlockCount:      blockCount,
        Remainder:       remainder,
        StrongSumLength: strongLen,
    }, nil
}

func maxBlockLength(protocolVersion uint8) uint32 {
    if protocolVersion < 30 {
        return MaxBlockLengthOld
    }
    return MaxBlockLengthV30
}

// calculateBlockLength mirrors the protocol's sum_sizes_sqroot block sizing.
func calculateBlockLength(totalBytes uint64, protocolVersion uint8, override uint32) uint32 {
    max := maxBlockLength(protocolVersion)

    if override != 0 {
        if override > max {
            return max
        }
        return override
    }

    if totalBytes <= uint64(DefaultBlockLength)*uint64(DefaultBlockLength) {
        return DefaultBlockLength
    }

    // power-of-two upper bound for the square root
    var (
        c = uint64(1)
        l = totalBytes
    )
    for l>>2 != 0 {
        c <<= 1
        l >>= 2
    }

    if c >= uint64(max) {
        return max
    }

    // largest blockLength with blockLength*blockLength <= totalBytes,
    // testing bits high to low and never setting bits below 8
    var blockLength uint64
    for current := c; current >= 8; current >>= 1 {
        blockLength |= current
        if totalBytes < blockLength*blockLength {
            blockLength &^= current
        }
    }

    if blockLength < uint64(DefaultBlockLength) {
        blockLength = uint64(DefaultBlockLength)
    }
    return uint32(blockLength)
}

// calculateStrongSumLength mirrors the protocol's BLOCKSUM_BIAS heuristic.
func calculateStrongSumLength(totalBytes uint64, blockLength uint32, protocolVersion uint8, requested uint8) uint8 {
    if protocolVersion < 27 {
        return requested
    }
    if requested >= MaxStrongSumLength {
        return MaxStrongSumLength
    }

    bias := blocksumBias
    for l := totalBytes; l>>1 != 0; l >>= 1 {
        bias += 2
    }
    for b := blockLength; b>>1 != 0 && bias > 0; b >>= 1 {
        bias--
    }

    length := (bias + 1 - 32 + 7) / 8
    if length < int(requested) {
        length = int(requested)
    }
    if length > int(MaxStrongSumLength) {
        length = int(MaxStrongSumLength)
    }
    return uint8(length)
}
