package rollsum

import (
    "bytes"

    . "gopkg.in/check.v1"
)

type DigestSuite struct {
}

var _ = Suite(&DigestSuite{})

func (s *DigestSuite) Test_PackingRoundTrip(c *C) {
    for _, d := range []RollingDigest{
        NewRollingDigest(0, 0, 0),
        NewRollingDigest(0x1234, 0x5678, 100),
        NewRollingDigest(0xffff, 0xffff, 1),
        NewRollingDigest(1, 0x8000, 700),
    } {
        c.Assert(DigestFromValue(d.Value(), d.Len()), Equals, d)
    }
}

func (s *DigestSuite) Test_ValuePacksComponents(c *C) {
    d := NewRollingDigest(0x1234, 0x5678, 99)
    c.Assert(d.Value()&0xffff, Equals, uint32(0x1234))
    c.Assert(d.Value()>>16, Equals, uint32(0x5678))
}

func (s *DigestSuite) Test_LittleEndianWireOrder(c *C) {
    d := NewRollingDigest(0x1234, 0x5678, 100)
    wire := d.ToLEBytes()
    c.Assert(wire, Equals, [4]byte{0x34, 0x12, 0x78, 0x56})
    c.Assert(DigestFromLEBytes(wire, 100), Equals, d)
}

func (s *DigestSuite) Test_SliceDecodeRejectsBadLength(c *C) {
    _, err := DigestFromLESlice([]byte{1, 2, 3}, 0)
    c.Assert(err, NotNil)
    _, err = DigestFromLESlice([]byte{1, 2, 3, 4, 5}, 0)
    c.Assert(err, NotNil)

    d, err := DigestFromLESlice([]byte{0x34, 0x12, 0x78, 0x56}, 7)
    c.Assert(err, IsNil)
    c.Assert(d.Sum1(), Equals, uint16(0x1234))
    c.Assert(d.Sum2(), Equals, uint16(0x5678))
    c.Assert(d.Len(), Equals, 7)
}

func (s *DigestSuite) Test_PutLEBytesLeavesBufferOnError(c *C) {
    d := NewRollingDigest(1, 2, 3)
    out := []byte{9, 9, 9}
    c.Assert(d.PutLEBytes(out), NotNil)
    c.Assert(bytes.Compare(out, []byte{9, 9, 9}), Equals, 0)
}

func (s *DigestSuite) Test_ReaderWriterRoundTrip(c *C) {
    d := NewRollingDigest(0xabcd, 0xef01, 256)

    var buf bytes.Buffer
    c.Assert(d.WriteLETo(&buf), IsNil)

    decoded, err := ReadLEFrom(&buf, 256)
    c.Assert(err, IsNil)
    c.Assert(decoded, Equals, d)
}

func (s *DigestSuite) Test_ReadShortPayloadFails(c *C) {
    _, err := ReadLEFrom(bytes.NewReader([]byte{1, 2}), 0)
    c.Assert(err, NotNil)
}

func (s *DigestSuite) Test_DigestOfBytesMatchesManual(c *C) {
    data := []byte("delta block")
    manual := NewRollingChecksum()
    manual.Update(data)
    c.Assert(DigestOfBytes(data), Equals, manual.Digest())
    c.Assert(DigestOfBytes(data).Len(), Equals, len(data))
}

func (s *DigestSuite) Test_ZeroDigestIsEmpty(c *C) {
    c.Assert(ZeroDigest.Empty(), Equals, true)
    c.Assert(ZeroDigest.Value(), Equals, uint32(0))
    c.Assert(DigestOfBytes(nil), Equals, ZeroDigest)
}
