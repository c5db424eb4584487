/*
 * Package index answers the delta generator's hot question: does the current
 * window match any basis block? The lookup is two-phase - the cheap rolling
 * digest proposes candidates, the truncated strong digest confirms them. A
 * weak hit without strong confirmation is a collision and never a match.
 *
 * The weak lookup shards across a 256 element slice keyed by the least
 * significant byte of the packed weak value; this outperformed a flat map by
 * a wide margin in the benchmarks that shaped the original structure.
 */
package index

import (
    "bytes"
    "sort"

    "github.com/pkg/errors"

    "github.com/oferchen/deltasync/merkle"
    "github.com/oferchen/deltasync/signature"
    "github.com/oferchen/deltasync/strongsum"
)

const (
    weakShardFilter uint32 = 0xff
    weakShardCount  int    = 256
)

// ErrUnknownBlock is returned when a block ID lookup misses.
var ErrUnknownBlock = errors.New("no block with the requested ID in the index")

// StrongCandidateList holds the blocks sharing one weak digest, ordered by
// strong digest and then by ascending block index.
type StrongCandidateList []signature.Block

func (s StrongCandidateList) Len() int {
    return len(s)
}

func (s StrongCandidateList) Swap(i, j int) {
    s[i], s[j] = s[j], s[i]
}

func (s StrongCandidateList) Less(i, j int) bool {
    if c := bytes.Compare(s[i].Strong, s[j].Strong); c != 0 {
        return c < 0
    }
    return s[i].Index < s[j].Index
}

/*
 * FindStrong returns every candidate whose truncated strong digest equals
 * strong and whose block length equals windowLen, in ascending block index
 * order. The length check is part of verification, not an optimisation: the
 * basis's short remainder block can collide with a full-length window on
 * both the weak value and a truncated strong sum, and copying it would lose
 * the length difference from the reconstruction. The single-candidate fast
 * path matters: most weak values map to exactly one block.
 */
func (s StrongCandidateList) FindStrong(strong []byte, windowLen int) StrongCandidateList {
    n := len(s)

    if n == 1 {
        if s[0].Rolling.Len() == windowLen && bytes.Equal(s[0].Strong, strong) {
            return s
        }
        return nil
    }

    first := sort.Search(n, func(i int) bool {
        return bytes.Compare(s[i].Strong, strong) >= 0
    })
    if first == n || !bytes.Equal(s[first].Strong, strong) {
        return nil
    }

    end := first + 1
    for end < n && bytes.Equal(s[end].Strong, strong) {
        end++
    }

    equal := s[first:end]
    for i, candidate := range equal {
        if candidate.Rolling.Len() != windowLen {
            verified := append(StrongCandidateList(nil), equal[:i]...)
            for _, rest := range equal[i+1:] {
                if rest.Rolling.Len() == windowLen {
                    verified = append(verified, rest)
                }
            }
            if len(verified) == 0 {
                return nil
            }
            return verified
        }
    }
    return equal
}

// BlockMatchIndex is the read-only lookup structure built from one signature.
type BlockMatchIndex struct {
    layout     signature.Layout
    weakLookup []map[uint32]StrongCandidateList
    sequence   []signature.Block // ordered by block index

    // BlockCount is the number of indexed blocks.
    BlockCount int

    // MaxCandidates is the longest candidate list behind a single weak value.
    MaxCandidates int

    // AverageCandidates is the mean candidate list length, a proxy for how
    // collision-prone the basis is.
    AverageCandidates float64
}

// MakeBlockMatchIndex builds the lookup tables from a generated signature.
// An empty signature yields an index that matches nothing.
func MakeBlockMatchIndex(sig *signature.FileSignature) *BlockMatchIndex {
    n := &BlockMatchIndex{
        layout:     sig.Layout,
        weakLookup: make([]map[uint32]StrongCandidateList, weakShardCount),
        sequence:   make([]signature.Block, len(sig.Blocks)),
        BlockCount: len(sig.Blocks),
    }
    copy(n.sequence, sig.Blocks)

    for _, block := range sig.Blocks {
        var (
            weak  = block.Rolling.Value()
            shard = weak & weakShardFilter
        )
        if n.weakLookup[shard] == nil {
            n.weakLookup[shard] = make(map[uint32]StrongCandidateList)
        }
        n.weakLookup[shard][weak] = append(n.weakLookup[shard][weak], block)
    }

    var (
        sum   = 0
        count = 0
    )
    for _, shard := range n.weakLookup {
        for _, candidates := range shard {
            sort.Sort(candidates)
            if len(candidates) > n.MaxCandidates {
                n.MaxCandidates = len(candidates)
            }
            sum += len(candidates)
            count++
        }
    }
    if count > 0 {
        n.AverageCandidates = float64(sum) / float64(count)
    }

    return n
}

// Layout returns the geometry the index was built from.
func (n *BlockMatchIndex) Layout() signature.Layout {
    return n.layout
}

// FindWeak returns the candidate list behind a packed weak value, nil when
// the weak digest hits nothing.
func (n *BlockMatchIndex) FindWeak(weak uint32) StrongCandidateList {
    shard := n.weakLookup[weak&weakShardFilter]
    if shard == nil {
        return nil
    }
    return shard[weak]
}

/*
 * FindMatch runs the full two-phase lookup for one window: the packed weak
 * value narrows to a candidate list, the window's freshly computed truncated
 * strong digest plus the window length confirm. When several blocks carry
 * identical content the lowest block index wins, keeping the generated delta
 * deterministic.
 */
func (n *BlockMatchIndex) FindMatch(weak uint32, window []byte, algorithm strongsum.Algorithm) (signature.Block, bool) {
    candidates := n.FindWeak(weak)
    if len(candidates) == 0 {
        return signature.Block{}, false
    }

    strong := algorithm.ComputeFull(window)
    if truncated := int(n.layout.StrongSumLength); truncated < len(strong) {
        strong = strong[:truncated]
    }
    verified := candidates.FindStrong(strong, len(window))
    if len(verified) == 0 {
        return signature.Block{}, false
    }
    return verified[0], true
}

// Block returns the signature block with the given ID, for sequential
// followers that want to test whether the next block continues a match.
func (n *BlockMatchIndex) Block(blockID uint64) (signature.Block, error) {
    if blockID >= uint64(len(n.sequence)) {
        return signature.Block{}, errors.Wrapf(ErrUnknownBlock, "block %v of %v", blockID, len(n.sequence))
    }
    return n.sequence[blockID], nil
}

// StrongSums returns the indexed strong digests in block order.
func (n *BlockMatchIndex) StrongSums() [][]byte {
    hashes := make([][]byte, 0, len(n.sequence))
    for i := range n.sequence {
        hashes = append(hashes, n.sequence[i].Strong)
    }
    return hashes
}

// VerifyRootHash checks the indexed checksum table as a whole against a
// reference merkle root before any match built from it is trusted.
func (n *BlockMatchIndex) VerifyRootHash(reference []byte, algorithm strongsum.Algorithm) error {
    return merkle.Verify(n.StrongSums(), reference, algorithm)
}
