package signature

import (
    "bytes"
    "math/rand"

    "github.com/pkg/errors"
    . "gopkg.in/check.v1"

    "github.com/oferchen/deltasync/rollsum"
    "github.com/oferchen/deltasync/strongsum"
)

type GenerateSuite struct {
    algorithm strongsum.Algorithm
    rand      *rand.Rand
}

var _ = Suite(&GenerateSuite{})

func (s *GenerateSuite) SetUpSuite(c *C) {
    s.algorithm = strongsum.Default()
    s.rand = rand.New(rand.NewSource(26))
}

func (s *GenerateSuite) randomBytes(c *C, length int) []byte {
    data := make([]byte, length)
    _, err := s.rand.Read(data)
    c.Assert(err, IsNil)
    return data
}

func (s *GenerateSuite) layoutFor(c *C, totalBytes uint64, blockLength uint32) Layout {
    layout, err := CalculateLayout(totalBytes, blockLength, 31, 2, s.algorithm)
    c.Assert(err, IsNil)
    return layout
}

func (s *GenerateSuite) Test_EmptyInputYieldsZeroBlocks(c *C) {
    layout := s.layoutFor(c, 0, 700)
    sig, err := Generate(bytes.NewReader(nil), layout, s.algorithm)
    c.Assert(err, IsNil)
    c.Assert(sig.Blocks, HasLen, 0)
    c.Assert(sig.TotalBytes, Equals, uint64(0))
}

func (s *GenerateSuite) Test_BlocksCarrySequentialIndexes(c *C) {
    data := s.randomBytes(c, 512*3)
    layout := s.layoutFor(c, uint64(len(data)), 512)

    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)
    c.Assert(sig.Blocks, HasLen, 3)
    for i, block := range sig.Blocks {
        c.Assert(block.Index, Equals, uint64(i))
        c.Assert(block.Strong, HasLen, int(layout.StrongSumLength))
    }
}

func (s *GenerateSuite) Test_DigestsMatchIndependentComputation(c *C) {
    data := s.randomBytes(c, 512*2+100)
    layout := s.layoutFor(c, uint64(len(data)), 512)

    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)
    c.Assert(sig.Blocks, HasLen, 3)

    for _, block := range sig.Blocks {
        offset := layout.BlockOffset(block.Index)
        chunk := data[offset : offset+uint64(layout.BlockSize(block.Index))]

        c.Assert(block.Rolling, Equals, rollsum.DigestOfBytes(chunk))

        full := s.algorithm.ComputeFull(chunk)
        c.Assert(block.Strong, DeepEquals, full[:layout.StrongSumLength])
    }
}

func (s *GenerateSuite) Test_GenerationIsDeterministic(c *C) {
    data := s.randomBytes(c, 3000)
    layout := s.layoutFor(c, uint64(len(data)), 700)

    first, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)
    second, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)
    c.Assert(first, DeepEquals, second)
}

func (s *GenerateSuite) Test_ShortInputFails(c *C) {
    data := s.randomBytes(c, 2000)
    layout := s.layoutFor(c, 3000, 700)

    _, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrMissingData)
}

func (s *GenerateSuite) Test_LongInputFails(c *C) {
    data := s.randomBytes(c, 3001)
    layout := s.layoutFor(c, 3000, 700)

    _, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, Equals, ErrTrailingData)
}

func (s *GenerateSuite) Test_StrongSumWiderThanDigestFails(c *C) {
    layout := s.layoutFor(c, 1400, 700)
    layout.StrongSumLength = 20

    _, err := Generate(bytes.NewReader(s.randomBytes(c, 1400)), layout, strongsum.XXH3())
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrDigestLengthMismatch)
}

func (s *GenerateSuite) Test_RootHashVerifies(c *C) {
    data := s.randomBytes(c, 5000)
    layout := s.layoutFor(c, uint64(len(data)), 700)

    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)

    root, err := sig.RootHash(s.algorithm)
    c.Assert(err, IsNil)
    c.Assert(sig.VerifyRoot(root, s.algorithm), IsNil)

    sig.Blocks[2].Strong[0] ^= 0xff
    c.Assert(sig.VerifyRoot(root, s.algorithm), NotNil)
}

type WireSuite struct {
    algorithm strongsum.Algorithm
    rand      *rand.Rand
}

var _ = Suite(&WireSuite{})

func (s *WireSuite) SetUpSuite(c *C) {
    s.algorithm = strongsum.Default()
    s.rand = rand.New(rand.NewSource(62))
}

func (s *WireSuite) Test_VarintRoundTrip(c *C) {
    for _, value := range []uint32{
        0, 1, 0x7f, 0x80, 0xff, 0x100, 0x3fff, 0x4000,
        0x1fffff, 0x200000, 0xfffffff, 0x10000000, 0x7fffffff,
    } {
        var buf bytes.Buffer
        c.Assert(writeVarint(&buf, value), IsNil)

        decoded, err := readVarint(&buf)
        c.Assert(err, IsNil)
        c.Assert(decoded, Equals, value, Commentf("value=%#x", value))
        c.Assert(buf.Len(), Equals, 0)
    }
}

func (s *WireSuite) Test_SmallValuesStaySingleByte(c *C) {
    var buf bytes.Buffer
    c.Assert(writeVarint(&buf, 0x7f), IsNil)
    c.Assert(buf.Len(), Equals, 1)
}

func (s *WireSuite) Test_SignatureRoundTrip(c *C) {
    data := make([]byte, 512*2+100)
    _, err := s.rand.Read(data)
    c.Assert(err, IsNil)

    layout, err := CalculateLayout(uint64(len(data)), 512, 31, 2, s.algorithm)
    c.Assert(err, IsNil)
    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)

    var buf bytes.Buffer
    c.Assert(sig.WriteTo(&buf), IsNil)

    decoded, err := ReadFrom(&buf)
    c.Assert(err, IsNil)
    c.Assert(decoded, DeepEquals, sig)
    c.Assert(buf.Len(), Equals, 0)
}

func (s *WireSuite) Test_WriteRejectsMismatchedStrongLength(c *C) {
    data := make([]byte, 1400)
    layout, err := CalculateLayout(uint64(len(data)), 700, 31, 2, s.algorithm)
    c.Assert(err, IsNil)
    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)

    sig.Blocks[1].Strong = sig.Blocks[1].Strong[:1]

    var buf bytes.Buffer
    err = sig.WriteTo(&buf)
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrDigestLengthMismatch)
}

func (s *WireSuite) Test_TruncatedStreamFails(c *C) {
    data := make([]byte, 2100)
    layout, err := CalculateLayout(uint64(len(data)), 700, 31, 2, s.algorithm)
    c.Assert(err, IsNil)
    sig, err := Generate(bytes.NewReader(data), layout, s.algorithm)
    c.Assert(err, IsNil)

    var buf bytes.Buffer
    c.Assert(sig.WriteTo(&buf), IsNil)

    wire := buf.Bytes()
    for _, cut := range []int{1, 5, len(wire) / 2, len(wire) - 1} {
        _, err := ReadFrom(bytes.NewReader(wire[:cut]))
        c.Assert(err, NotNil, Commentf("cut=%v", cut))
    }
}

func (s *WireSuite) Test_CorruptHeaderRejected(c *C) {
    var buf bytes.Buffer
    // one block, but a zero block length
    c.Assert(writeVarint(&buf, 1), IsNil)
    c.Assert(writeVarint(&buf, 0), IsNil)
    c.Assert(writeVarint(&buf, 2), IsNil)
    c.Assert(writeVarint(&buf, 0), IsNil)

    _, err := ReadFrom(&buf)
    c.Assert(err, NotNil)
    c.Assert(errors.Cause(err), Equals, ErrHeaderCorrupt)
}
