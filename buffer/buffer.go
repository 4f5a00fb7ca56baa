package buffer

import (
	"errors"
	"io"
)

// ErrTooLarge is returned when the buffer cannot grow to hold the requested
// data, either because the allocation failed or because it would exceed the
// configured maximum size. Callers should treat it as fatal for the connection.
var ErrTooLarge = errors.New("buffer: too large")

// MinRead is the minimum free space ReadFrom makes available before reading.
const MinRead = 512

// GrowthPolicy decides the new capacity of a buffer that must hold need bytes.
// It never affects buffer contents, only how many reallocations happen.
type GrowthPolicy func(capacity, need int) int

// ExactFit grows the buffer to exactly the required size, leaving no slack.
// This is the default: peak memory stays minimal at the cost of more
// reallocations when many small writes hit a nearly full buffer.
func ExactFit(_, need int) int {
	return need
}

// Doubling grows the buffer geometrically.
func Doubling(capacity, need int) int {
	if n := 2 * capacity; n > need {
		return n
	}
	return need
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithGrowth sets the growth policy. A nil policy means ExactFit.
func WithGrowth(policy GrowthPolicy) Option {
	return func(b *Buffer) {
		if policy != nil {
			b.grow = policy
		}
	}
}

// WithMaxSize caps the capacity of the buffer. Zero means no limit.
func WithMaxSize(n int) Option {
	return func(b *Buffer) {
		b.maxSize = n
	}
}

// Buffer is a growable byte accumulator for socket I/O.
//
// Valid data always occupies [0, Len()). Capacity only grows, and only when a
// write requires it; consumed bytes are removed by shifting the remainder to
// the front so the storage is reused for the lifetime of the buffer.
//
// A Buffer is not safe for concurrent use. It is meant to be owned by exactly
// one connection at a time.
type Buffer struct {
	buf     []byte
	n       int
	grow    GrowthPolicy
	maxSize int
}

// New creates a buffer with initialSize bytes of capacity.
func New(initialSize int, opts ...Option) *Buffer {
	if initialSize < 0 {
		initialSize = 0
	}
	b := &Buffer{
		buf:  make([]byte, initialSize),
		grow: ExactFit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.n }

// Cap returns the size of the allocated storage.
func (b *Buffer) Cap() int { return len(b.buf) }

// Free returns the number of bytes that can be appended without growing.
func (b *Buffer) Free() int { return len(b.buf) - b.n }

// Bytes returns the valid bytes. The slice aliases the buffer storage and is
// only valid until the next mutation.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n] }

// Tail returns the free region of the storage. Data written into it becomes
// part of the buffer after Commit.
func (b *Buffer) Tail() []byte { return b.buf[b.n:] }

// Commit marks n bytes of the Tail as valid.
// n must not exceed Free().
func (b *Buffer) Commit(n int) { b.n += n }

// EnsureCapacity grows the storage to exactly n bytes if it is smaller,
// keeping the valid bytes. It never shrinks.
func (b *Buffer) EnsureCapacity(n int) error {
	if len(b.buf) >= n {
		return nil
	}
	if b.maxSize > 0 && n > b.maxSize {
		return ErrTooLarge
	}
	return b.realloc(n)
}

// Append copies count bytes of src starting at offset to the end of the
// buffer, growing it when the free space is too small.
//
// offset and count must describe a valid range of src; violations are not
// checked beyond what the runtime does.
func (b *Buffer) Append(src []byte, offset, count int) error {
	if b.Free() < count {
		if err := b.growTo(b.n + count); err != nil {
			return err
		}
	}
	copy(b.buf[b.n:], src[offset:offset+count])
	b.n += count
	return nil
}

// Write appends p. It implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Append(p, 0, len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Consume drops count bytes from the front of the buffer.
// Consuming everything or more is a reset; otherwise the remaining bytes are
// shifted down to index 0.
func (b *Buffer) Consume(count int) {
	if count >= b.n {
		b.n = 0
		return
	}
	if count <= 0 {
		return
	}
	copy(b.buf, b.buf[count:b.n])
	b.n -= count
}

// ConsumeAll empties the buffer, keeping its storage.
func (b *Buffer) ConsumeAll() { b.Consume(b.n) }

// Truncate discards all but the first n valid bytes. It is used to roll back a
// partially written record.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > b.n {
		panic("buffer: truncation out of range")
	}
	b.n = n
}

// ReadFrom performs a single Read from r into the free region, growing the
// buffer by MinRead first when it is full. It returns io.EOF as is so the
// caller can tell a closed peer from an empty read.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	if b.Free() < MinRead {
		need := b.n + MinRead
		if b.maxSize > 0 && need > b.maxSize {
			need = b.maxSize
		}
		if need > len(b.buf) {
			if err := b.growTo(need); err != nil {
				return 0, err
			}
		}
		if b.Free() == 0 {
			return 0, ErrTooLarge
		}
	}
	m, err := r.Read(b.buf[b.n:])
	if m < 0 {
		panic("buffer: reader returned negative count")
	}
	b.n += m
	return int64(m), err
}

// WriteTo writes the valid bytes to w and consumes what was written.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.n == 0 {
		return 0, nil
	}
	m, err := w.Write(b.buf[:b.n])
	if m > b.n {
		panic("buffer: invalid Write count")
	}
	short := m < b.n
	b.Consume(m)
	if err == nil && short {
		err = io.ErrShortWrite
	}
	return int64(m), err
}

// growTo reallocates to hold need bytes, sized by the growth policy and
// clamped to maxSize.
func (b *Buffer) growTo(need int) error {
	if b.maxSize > 0 && need > b.maxSize {
		return ErrTooLarge
	}
	size := b.grow(len(b.buf), need)
	if size < need {
		size = need
	}
	if b.maxSize > 0 && size > b.maxSize {
		size = b.maxSize
	}
	return b.realloc(size)
}

func (b *Buffer) realloc(size int) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrTooLarge
		}
	}()
	next := make([]byte, size)
	copy(next, b.buf[:b.n])
	b.buf = next
	return nil
}
