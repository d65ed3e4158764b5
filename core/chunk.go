package core

import (
	"encoding/binary"
	"errors"

	"github.com/tinylib/msgp/msgp"
)

const (
	// minChunkSize is the capacity a Chunk grows to on its first reservation.
	minChunkSize = 64 * 1024

	maxInt = int(^uint(0) >> 1)
)

// ErrChunkTooLarge is the panic value used when a reservation cannot be
// represented. It is never returned; callers must treat it as fatal.
var ErrChunkTooLarge = errors.New("core.Chunk: too large")

// Chunk is a growable byte region with an explicit logical length. The
// allocation is kept across Reset so the same memory is reused for every
// flush cycle.
type Chunk struct {
	buf []byte
}

// NewChunk creates a Chunk with the given initial capacity.
func NewChunk(size int) *Chunk {
	if size < 0 {
		size = 0
	}
	return &Chunk{buf: make([]byte, 0, size)}
}

// Len returns the logical length.
func (c *Chunk) Len() int {
	return len(c.buf)
}

// Bytes returns the written bytes. The slice aliases the Chunk and is only
// valid until the next write or Reset.
func (c *Chunk) Bytes() []byte {
	return c.buf
}

// Reset sets the logical length to zero and keeps the allocation.
func (c *Chunk) Reset() {
	c.buf = c.buf[:0]
}

// Reserve guarantees at least n writable bytes past the logical length.
// Capacity doubles until it fits; already-written bytes are preserved.
func (c *Chunk) Reserve(n int) {
	if n < 0 {
		panic(ErrChunkTooLarge)
	}
	length := len(c.buf)
	if cap(c.buf)-length >= n {
		return
	}
	if n > maxInt-length {
		panic(ErrChunkTooLarge)
	}
	need := length + n
	size := cap(c.buf)
	if size < minChunkSize {
		size = minChunkSize
	}
	for size < need {
		if size > maxInt/2 {
			size = need
			break
		}
		size *= 2
	}
	buf := make([]byte, length, size)
	copy(buf, c.buf)
	c.buf = buf
}

// Write appends s as a msgpack string record and returns the number of
// bytes written.
func (c *Chunk) Write(s string) int {
	c.Reserve(msgp.StringPrefixSize + len(s))
	start := len(c.buf)
	c.buf = msgp.AppendString(c.buf, s)
	return len(c.buf) - start
}

// Copy appends the bytes [start, end) of c to dst and returns the number of
// bytes copied.
func (c *Chunk) Copy(dst *Chunk, start, end int) int {
	n := end - start
	dst.Reserve(n)
	dst.buf = append(dst.buf, c.buf[start:end]...)
	return n
}

// AppendByte appends a single raw byte.
func (c *Chunk) AppendByte(b byte) {
	c.Reserve(1)
	c.buf = append(c.buf, b)
}

// AppendUint32 appends a tag byte followed by v in big-endian order.
func (c *Chunk) AppendUint32(tag byte, v uint32) {
	c.Reserve(5)
	c.buf = append(c.buf, tag, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// AppendUint64 appends a tag byte followed by v in big-endian order.
func (c *Chunk) AppendUint64(tag byte, v uint64) {
	c.Reserve(9)
	c.buf = append(c.buf, tag)
	c.buf = binary.BigEndian.AppendUint64(c.buf, v)
}

// AppendFloat64 appends f as a msgpack float64 (0xcb and the big-endian
// IEEE-754 bits).
func (c *Chunk) AppendFloat64(f float64) {
	c.Reserve(9)
	c.buf = msgp.AppendFloat64(c.buf, f)
}

// PutUint32At overwrites the four bytes at offset with v in big-endian
// order. The range must already be written.
func (c *Chunk) PutUint32At(offset int, v uint32) {
	binary.BigEndian.PutUint32(c.buf[offset:offset+4], v)
}
