package delta

import (
    "fmt"
)

// OpKind discriminates the two delta operations.
type OpKind int

const (
    // OpCopyBlock reuses one basis block at its stored offset.
    OpCopyBlock OpKind = iota

    // OpLiteral carries source bytes verbatim.
    OpLiteral
)

func (k OpKind) String() string {
    switch k {
    case OpCopyBlock:
        return "copy-block"
    case OpLiteral:
        return "literal"
    }
    return fmt.Sprintf("op-kind(%d)", int(k))
}

/*
 * Op is one step of the reconstruction recipe, emitted strictly in source
 * order. A literal run is a single logical operation however many flushes it
 * took to move its bytes.
 */
type Op struct {
    Kind OpKind

    // BlockIndex and BasisOffset locate the reused block. Copy only.
    BlockIndex  uint64
    BasisOffset uint64

    // Length is the operation's byte count in the reconstructed file.
    Length uint64
}

func (o Op) String() string {
    if o.Kind == OpCopyBlock {
        return fmt.Sprintf("copy-block{index: %v, offset: %v, len: %v}",
            o.BlockIndex, o.BasisOffset, o.Length)
    }
    return fmt.Sprintf("literal{len: %v}", o.Length)
}
