/*
 * Package strongsum provides the strong-checksum capability consumed by the
 * signature generator and the match index. The delta code never depends on a
 * particular hash: it sees only a digest width and a full-digest computation,
 * and protocol negotiation (outside this engine) decides which variant both
 * sides use. The weak rolling checksum proposes candidate blocks; one of these
 * algorithms confirms them.
 */
package strongsum

import (
    "crypto/md5"
    "crypto/sha1"
    "encoding/binary"
    "hash"

    sha256simd "github.com/minio/sha256-simd"
    "github.com/pkg/errors"
    "github.com/zeebo/xxh3"
    "golang.org/x/crypto/md4"
    "golang.org/x/crypto/ripemd160"
)

// ErrUnknownAlgorithm is returned by ByName for an unrecognised name.
var ErrUnknownAlgorithm = errors.New("unknown strong checksum algorithm")

// Algorithm is the capability interface for one strong-checksum variant.
type Algorithm interface {
    Name() string

    // DigestLen is the full digest width in bytes.
    DigestLen() int

    // ComputeFull returns the complete, untruncated digest of block.
    ComputeFull(block []byte) []byte
}

// hashAlgorithm adapts a hash.Hash factory. A fresh hash per call keeps the
// algorithm value safe to share between concurrent delta passes.
type hashAlgorithm struct {
    name    string
    size    int
    factory func() hash.Hash
}

func (h hashAlgorithm) Name() string {
    return h.name
}

func (h hashAlgorithm) DigestLen() int {
    return h.size
}

func (h hashAlgorithm) ComputeFull(block []byte) []byte {
    hasher := h.factory()
    hasher.Write(block)
    return hasher.Sum(nil)
}

type xxh3Algorithm struct {
    wide bool
}

func (x xxh3Algorithm) Name() string {
    if x.wide {
        return "xxh3-128"
    }
    return "xxh3"
}

func (x xxh3Algorithm) DigestLen() int {
    if x.wide {
        return 16
    }
    return 8
}

func (x xxh3Algorithm) ComputeFull(block []byte) []byte {
    if x.wide {
        sum := xxh3.Hash128(block).Bytes()
        return sum[:]
    }
    out := make([]byte, 8)
    binary.BigEndian.PutUint64(out, xxh3.Hash(block))
    return out
}

// MD4 is the protocol's historical block checksum.
func MD4() Algorithm {
    return hashAlgorithm{name: "md4", size: md4.Size, factory: md4.New}
}

func MD5() Algorithm {
    return hashAlgorithm{name: "md5", size: md5.Size, factory: md5.New}
}

func SHA1() Algorithm {
    return hashAlgorithm{name: "sha1", size: sha1.Size, factory: sha1.New}
}

// RIPEMD160 is the default when nothing has been negotiated.
func RIPEMD160() Algorithm {
    return hashAlgorithm{name: "ripemd160", size: ripemd160.Size, factory: ripemd160.New}
}

// SHA256 selects a SIMD implementation variant at call time based on detected
// CPU capabilities.
func SHA256() Algorithm {
    return hashAlgorithm{name: "sha256", size: sha256simd.Size, factory: sha256simd.New}
}

func XXH3() Algorithm {
    return xxh3Algorithm{}
}

func XXH3128() Algorithm {
    return xxh3Algorithm{wide: true}
}

// Default is the algorithm used when the caller does not pick one.
func Default() Algorithm {
    return RIPEMD160()
}

// ByName resolves a negotiated algorithm name.
func ByName(name string) (Algorithm, error) {
    switch name {
    case "md4":
        return MD4(), nil
    case "md5":
        return MD5(), nil
    case "sha1":
        return SHA1(), nil
    case "ripemd160":
        return RIPEMD160(), nil
    case "sha256":
        return SHA256(), nil
    case "xxh3":
        return XXH3(), nil
    case "xxh3-128":
        return XXH3128(), nil
    }
    return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
}
