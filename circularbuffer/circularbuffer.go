/*
 * Package circularbuffer provides the fixed-capacity ring buffer that backs the
 * delta scanner's sliding window. The buffer owns the window bytes so that the
 * rolling checksum can stay a pure accumulator: writes past the capacity evict
 * the oldest bytes, and the evicted run stays readable until the next write so
 * the scanner can feed it to the literal path and to the checksum's roll.
 *
 * All storage is retained across Reset so that one buffer serves a whole
 * delta pass without reallocation.
 */
package circularbuffer

import (
    "github.com/pkg/errors"
)

var (
    // ErrZeroCapacity is returned by MakeRing for a non-positive capacity.
    ErrZeroCapacity = errors.New("ring buffer capacity must be greater than zero")
)

type Ring struct {
    buffer   []byte
    head     int // index of the oldest byte
    length   int // number of live bytes
    evicted  []byte
    contents []byte
}

// MakeRing builds an empty ring buffer holding at most capacity bytes.
func MakeRing(capacity int) (*Ring, error) {
    if capacity <= 0 {
        return nil, errors.Wrapf(ErrZeroCapacity, "capacity %v", capacity)
    }
    return &Ring{
        buffer:   make([]byte, capacity),
        evicted:  make([]byte, 0, capacity),
        contents: make([]byte, 0, capacity),
    }, nil
}

func (r *Ring) Capacity() int {
    return len(r.buffer)
}

func (r *Ring) Len() int {
    return r.length
}

func (r *Ring) Empty() bool {
    return r.length == 0
}

/*
 * Write appends p to the back of the ring, evicting from the front whatever no
 * longer fits. The evicted bytes (oldest first) are available from Evicted()
 * until the next Write. Writing more than a full capacity in one call keeps
 * only the trailing capacity bytes, evicting the current contents plus the
 * leading surplus of p, which matches the behaviour the scanner needs when it
 * skips ahead over a matched block.
 */
func (r *Ring) Write(p []byte) {
    var (
        capacity = len(r.buffer)
        overflow = r.length + len(p) - capacity
    )

    r.evicted = r.evicted[:0]
    if overflow > 0 {
        fromRing := overflow
        if fromRing > r.length {
            fromRing = r.length
        }
        for i := 0; i < fromRing; i++ {
            r.evicted = append(r.evicted, r.buffer[(r.head+i)%capacity])
        }
        r.head = (r.head + fromRing) % capacity
        r.length -= fromRing

        // surplus of p that would itself be evicted immediately
        if skip := overflow - fromRing; skip > 0 {
            r.evicted = append(r.evicted, p[:skip]...)
            p = p[skip:]
        }
    }

    for _, b := range p {
        r.buffer[(r.head+r.length)%capacity] = b
        r.length++
    }
}

// Evicted returns the bytes pushed out by the most recent Write, oldest first.
// The slice is only valid until the next Write or Reset.
func (r *Ring) Evicted() []byte {
    return r.evicted
}

// GetBlock materialises the current contents as one contiguous slice, oldest
// byte first. The slice is only valid until the next Write or Reset.
func (r *Ring) GetBlock() []byte {
    var capacity = len(r.buffer)

    r.contents = r.contents[:0]
    for i := 0; i < r.length; i++ {
        r.contents = append(r.contents, r.buffer[(r.head+i)%capacity])
    }
    return r.contents
}

// Reset empties the ring without releasing storage.
func (r *Ring) Reset() {
    r.head = 0
    r.length = 0
    r.evicted = r.evicted[:0]
    r.contents = r.contents[:0]
}
