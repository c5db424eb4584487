/*
 * Computes a deterministic minimal height merkle tree hash over a signature's
 * block checksums. If the number of leaves is not a power of two, some leaves
 * sit at different levels; both sides of the tree stay the same size, except
 * the left may be one greater.
 *
 * A signature's root hash lets a receiver check the integrity of a checksum
 * table as a whole before trusting any block match built from it.
 */
package merkle

import (
    "bytes"

    "github.com/pkg/errors"

    "github.com/oferchen/deltasync/strongsum"
)

var (
    // ErrNoLeaves is returned when a root is requested over zero hashes.
    ErrNoLeaves = errors.New("cannot build a tree root from zero leaves")

    // ErrRootMismatch is returned by Verify when the computed root differs.
    ErrRootMismatch = errors.New("computed root hash differs from reference")
)

// HashFromTwoHashes combines two child hashes with the given algorithm.
func HashFromTwoHashes(left, right []byte, algorithm strongsum.Algorithm) []byte {
    joined := make([]byte, 0, len(left)+len(right))
    joined = append(joined, left...)
    joined = append(joined, right...)
    return algorithm.ComputeFull(joined)
}

// HashFromHashes reduces an ordered leaf list to the tree's root hash.
func HashFromHashes(hashes [][]byte, algorithm strongsum.Algorithm) ([]byte, error) {
    switch len(hashes) {
    case 0:
        return nil, ErrNoLeaves
    case 1:
        return hashes[0], nil
    default:
        split := (len(hashes) + 1) / 2
        left, err := HashFromHashes(hashes[:split], algorithm)
        if err != nil {
            return nil, err
        }
        right, err := HashFromHashes(hashes[split:], algorithm)
        if err != nil {
            return nil, err
        }
        return HashFromTwoHashes(left, right, algorithm), nil
    }
}

// Verify recomputes the root over hashes and compares it to reference.
func Verify(hashes [][]byte, reference []byte, algorithm strongsum.Algorithm) error {
    root, err := HashFromHashes(hashes, algorithm)
    if err != nil {
        return err
    }
    if !bytes.Equal(root, reference) {
        return ErrRootMismatch
    }
    return nil
}
