// Package sstack implements the scoped bump-allocator arena used to own
// the short-lived typed-value trees built during one iterator step.
// Each push is guaranteed contiguous within its own chunk even though
// the arena as a whole may span many chunks.
package sstack

import "github.com/robinhood-suite/robinhood4-sub002/internal/rherr"

type chunk struct {
	buf  []byte
	used int
}

// Arena is a LIFO bump allocator composed of variably-sized chunks.
type Arena struct {
	chunkSize int
	chunks    []*chunk
}

// New creates an Arena whose chunks are chunkSize bytes each. A single
// push/alloc larger than chunkSize always fails with rherr.Invalid.
func New(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &Arena{chunkSize: chunkSize}
}

func (a *Arena) topChunk() *chunk {
	if len(a.chunks) == 0 {
		return nil
	}
	return a.chunks[len(a.chunks)-1]
}

func (a *Arena) newChunk() *chunk {
	c := &chunk{buf: make([]byte, a.chunkSize)}
	a.chunks = append(a.chunks, c)
	return c
}

// Alloc reserves size uninitialized bytes, aligned to 8 bytes, and
// returns a slice view into the arena's backing storage.
func (a *Arena) Alloc(size int) ([]byte, error) {
	if c := a.topChunk(); c != nil {
		// Pad only when the padded region still fits; otherwise push
		// starts a fresh chunk, whose offset 0 is already aligned.
		if pad := (8 - c.used%8) % 8; pad > 0 && c.used+pad+size <= len(c.buf) {
			c.used += pad
		}
	}
	return a.push(nil, size)
}

// Push copies data into the arena (or, if data is nil, reserves size
// uninitialized bytes) and returns a stable, chunk-contiguous slice.
func (a *Arena) Push(data []byte, size int) ([]byte, error) {
	return a.push(data, size)
}

func (a *Arena) push(data []byte, size int) ([]byte, error) {
	if size > a.chunkSize {
		return nil, rherr.New(rherr.Invalid, "push size %d exceeds chunk size %d", size, a.chunkSize)
	}
	c := a.topChunk()
	if c == nil || c.used+size > len(c.buf) {
		c = a.newChunk()
	}
	out := c.buf[c.used : c.used+size]
	if data != nil {
		copy(out, data)
	}
	c.used += size
	return out, nil
}

// Strdup copies s into the arena and returns it as a string-backed byte
// slice's string view (a convenience wrapper over Push).
func (a *Arena) Strdup(s string) (string, error) {
	b, err := a.Push([]byte(s), len(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Strndup copies at most n bytes of s into the arena.
func (a *Arena) Strndup(s string, n int) (string, error) {
	if n < len(s) {
		s = s[:n]
	}
	return a.Strdup(s)
}

// Peek returns the topmost contiguous region: its current length. The
// caller is expected to already hold the slice returned by Push/Alloc;
// Peek exists to answer "how much of the top chunk is currently live".
func (a *Arena) Peek() []byte {
	c := a.topChunk()
	if c == nil {
		return nil
	}
	return c.buf[:c.used]
}

// Pop releases n bytes from the topmost contiguous region. n must not
// exceed the size of that region.
func (a *Arena) Pop(n int) error {
	c := a.topChunk()
	if c == nil || n > c.used {
		return rherr.New(rherr.Invalid, "pop %d exceeds topmost region", n)
	}
	c.used -= n
	if c.used == 0 && len(a.chunks) > 1 {
		a.chunks = a.chunks[:len(a.chunks)-1]
	}
	return nil
}

// PopAll resets the arena to empty, keeping one chunk's backing array
// around for reuse (the common "reset between next() calls" pattern).
func (a *Arena) PopAll() {
	if len(a.chunks) == 0 {
		return
	}
	first := a.chunks[0]
	first.used = 0
	a.chunks = a.chunks[:1]
}

// Shrink drops every chunk beyond the first, reclaiming memory used by
// a transient burst of large pushes.
func (a *Arena) Shrink() {
	if len(a.chunks) > 1 {
		a.chunks = a.chunks[:1]
	}
}

// Destroy releases every chunk. The Arena is unusable afterwards except
// for a fresh round of pushes (new chunks are allocated lazily).
func (a *Arena) Destroy() {
	a.chunks = nil
}
