package patcher

import (
    "bytes"
    "math/rand"
    "testing"

    "github.com/pkg/errors"
    . "gopkg.in/check.v1"

    "github.com/oferchen/deltasync/compress"
    "github.com/oferchen/deltasync/delta"
    "github.com/oferchen/deltasync/index"
    "github.com/oferchen/deltasync/signature"
    "github.com/oferchen/deltasync/strongsum"
)

func TestPatcher(t *testing.T) { TestingT(t) }

type PatcherSuite struct {
    algorithm strongsum.Algorithm
    rand      *rand.Rand
}

var _ = Suite(&PatcherSuite{})

func (s *PatcherSuite) SetUpSuite(c *C) {
    s.algorithm = strongsum.Default()
    s.rand = rand.New(rand.NewSource(99))
}

func (s *PatcherSuite) randomBytes(c *C, length int) []byte {
    data := make([]byte, length)
    _, err := s.rand.Read(data)
    c.Assert(err, IsNil)
    return data
}

func (s *PatcherSuite) indexFor(c *C, basis []byte, blockLength uint32) *index.BlockMatchIndex {
    layout, err := signature.CalculateLayout(uint64(len(basis)), blockLength, 31, 2, s.algorithm)
    c.Assert(err, IsNil)
    sig, err := signature.Generate(bytes.NewReader(basis), layout, s.algorithm)
    c.Assert(err, IsNil)
    return index.MakeBlockMatchIndex(sig)
}

// sendAndReceive runs the full sender/receiver exchange: the sender's codec
// carries the literal stream, the ops carry the structure
func (s *PatcherSuite) sendAndReceive(c *C, basis, source []byte, codec string) []byte {
    build, err := compress.ByName(codec)
    c.Assert(err, IsNil)

    var (
        discard bytes.Buffer
        wire    bytes.Buffer
    )
    compressor := build(&wire)
    ops, err := delta.Generate(delta.Config{
        Path:       "wire/file",
        Source:     bytes.NewReader(source),
        Basis:      bytes.NewReader(basis),
        Dest:       &discard,
        Index:      s.indexFor(c, basis, 512),
        Algorithm:  s.algorithm,
        Compressor: compressor,
    })
    c.Assert(err, IsNil)

    literals, err := compress.Decompressor(codec, &wire)
    c.Assert(err, IsNil)
    defer literals.Close()

    var dest bytes.Buffer
    written, err := Apply(Config{
        Path:     "wire/file",
        Ops:      ops,
        Basis:    bytes.NewReader(basis),
        Literals: literals,
        Dest:     &dest,
    })
    c.Assert(err, IsNil)
    c.Assert(written, Equals, uint64(len(source)))
    return dest.Bytes()
}

func (s *PatcherSuite) Test_ReconstructionMatchesSource(c *C) {
    basis := s.randomBytes(c, 512*6)
    source := append([]byte(nil), basis...)
    copy(source[512*2:], s.randomBytes(c, 100))
    source = append(source, s.randomBytes(c, 333)...)

    for _, codec := range []string{"none", "zlib", "zstd"} {
        rebuilt := s.sendAndReceive(c, basis, source, codec)
        c.Assert(rebuilt, DeepEquals, source, Commentf("codec=%v", codec))
    }
}

func (s *PatcherSuite) Test_LiteralOnlyStream(c *C) {
    source := s.randomBytes(c, 5000)
    rebuilt := s.sendAndReceive(c, nil, source, "zlib")
    c.Assert(rebuilt, DeepEquals, source)
}

func (s *PatcherSuite) Test_EmptyOpsWriteNothing(c *C) {
    var dest bytes.Buffer
    written, err := Apply(Config{Dest: &dest})
    c.Assert(err, IsNil)
    c.Assert(written, Equals, uint64(0))
    c.Assert(dest.Len(), Equals, 0)
}

func (s *PatcherSuite) Test_MissingDestRejected(c *C) {
    _, err := Apply(Config{})
    c.Assert(err, Equals, ErrMissingDest)
}

func (s *PatcherSuite) Test_CopyWithoutBasisFails(c *C) {
    var dest bytes.Buffer
    _, err := Apply(Config{
        Ops:  []delta.Op{{Kind: delta.OpCopyBlock, BlockIndex: 0, Length: 512}},
        Dest: &dest,
    })
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrMissingBasis)
}

func (s *PatcherSuite) Test_ShortBasisFails(c *C) {
    var dest bytes.Buffer
    _, err := Apply(Config{
        Ops:   []delta.Op{{Kind: delta.OpCopyBlock, BasisOffset: 0, Length: 512}},
        Basis: bytes.NewReader(make([]byte, 100)),
        Dest:  &dest,
    })
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrShortBasis)
}

func (s *PatcherSuite) Test_ShortLiteralStreamFails(c *C) {
    var dest bytes.Buffer
    _, err := Apply(Config{
        Ops:      []delta.Op{{Kind: delta.OpLiteral, Length: 512}},
        Literals: bytes.NewReader(make([]byte, 100)),
        Dest:     &dest,
    })
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrShortLiterals)
}

func (s *PatcherSuite) Test_LiteralWithoutStreamFails(c *C) {
    var dest bytes.Buffer
    _, err := Apply(Config{
        Ops:  []delta.Op{{Kind: delta.OpLiteral, Length: 10}},
        Dest: &dest,
    })
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrShortLiterals)
}

func (s *PatcherSuite) Test_PartialWriteReportedOnFailure(c *C) {
    basis := s.randomBytes(c, 1024)

    var dest bytes.Buffer
    written, err := Apply(Config{
        Ops: []delta.Op{
            {Kind: delta.OpCopyBlock, BlockIndex: 0, BasisOffset: 0, Length: 512},
            {Kind: delta.OpLiteral, Length: 10},
        },
        Basis: bytes.NewReader(basis),
        Dest:  &dest,
    })
    c.Assert(err, NotNil)
    c.Assert(written, Equals, uint64(512))
    c.Assert(dest.Bytes(), DeepEquals, basis[:512])
}
