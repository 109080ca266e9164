// Package ringr implements a single-producer, multi-reader byte ring
// buffer with per-reader acknowledgment. Each Reader
// holds its own cursor into the same backing array; the producer's tail
// only advances once every reader has acked the bytes it committed.
package ringr

import "github.com/robinhood-suite/robinhood4-sub002/internal/rherr"

// Ring is a single-producer ring buffer. Size must be a positive power
// of two so cursor arithmetic stays cheap.
type Ring struct {
	buf  []byte
	size int
	head int64 // total bytes ever pushed
	tail int64 // min(reader cursors); bytes before this are free to overwrite
	rds  []*Reader
}

// Reader is one consumer's read cursor into a Ring.
type Reader struct {
	ring   *Ring
	cursor int64 // total bytes acked by this reader
}

// New creates a ring of the given size, which must be a positive power
// of two.
func New(size int) (*Ring, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, rherr.New(rherr.Invalid, "ring size %d is not a positive power of two", size)
	}
	return &Ring{buf: make([]byte, size), size: size}, nil
}

// Dup adds a new reader positioned at the ring's current head: it sees
// only bytes pushed from now on.
func (r *Ring) Dup() *Reader {
	rd := &Reader{ring: r, cursor: r.head}
	r.rds = append(r.rds, rd)
	return rd
}

func (r *Ring) minCursor() int64 {
	if len(r.rds) == 0 {
		return r.head
	}
	min := r.rds[0].cursor
	for _, rd := range r.rds[1:] {
		if rd.cursor < min {
			min = rd.cursor
		}
	}
	return min
}

// Push commits size bytes from data. It fails with rherr.NoBufferSpace
// (committing nothing) if the slowest reader's region would be
// overwritten.
func (r *Ring) Push(data []byte) error {
	size := len(data)
	if size > r.size {
		return rherr.New(rherr.NoBufferSpace, "push of %d bytes exceeds ring size %d", size, r.size)
	}
	free := r.size - int(r.head-r.minCursor())
	if size > free {
		return rherr.New(rherr.NoBufferSpace, "ring full: need %d, have %d free", size, free)
	}
	start := int(r.head % int64(r.size))
	n := copy(r.buf[start:], data)
	if n < size {
		copy(r.buf[0:], data[n:])
	}
	r.head += int64(size)
	return nil
}

// Peek returns a linear (non-wrapping) view of every unread byte for
// rd, copying across the wrap boundary when necessary so callers can
// treat the result as one contiguous region.
func (rd *Reader) Peek() []byte {
	r := rd.ring
	n := int(r.head - rd.cursor)
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	start := int(rd.cursor % int64(r.size))
	c := copy(out, r.buf[start:])
	if c < n {
		copy(out[c:], r.buf[:n-c])
	}
	return out
}

// Ack advances rd's cursor by n bytes, which must not exceed the
// readable count. The ring's global tail advances only once every
// reader has acked past a given point.
func (rd *Reader) Ack(n int) error {
	r := rd.ring
	if int64(n) > r.head-rd.cursor {
		return rherr.New(rherr.Invalid, "ack %d exceeds readable bytes", n)
	}
	rd.cursor += int64(n)
	r.tail = r.minCursor()
	return nil
}

// Destroy acks all remaining readable bytes for rd and removes it from
// the ring, so a dropped reader never stalls the producer.
func (rd *Reader) Destroy() {
	_ = rd.Ack(int(rd.ring.head - rd.cursor))
	r := rd.ring
	for i, other := range r.rds {
		if other == rd {
			r.rds = append(r.rds[:i], r.rds[i+1:]...)
			break
		}
	}
}
