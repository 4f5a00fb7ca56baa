package token

import (
	"io"

	"github.com/eapache/queue"

	"github.com/pior/collector/buffer"
)

// SendQueue holds outbound packets until they are flushed to the connection.
//
// Packets are stored back to back in a single buffer that lives as long as
// the queue; the FIFO of packet sizes keeps the boundaries so a flush
// interrupted by a short write resumes inside the right packet.
type SendQueue struct {
	buf   *buffer.Buffer
	sizes *queue.Queue
	sent  int // bytes of the head packet already written
}

// NewSendQueue creates an empty queue whose storage starts at initialSize.
func NewSendQueue(initialSize int, opts ...buffer.Option) *SendQueue {
	return &SendQueue{
		buf:   buffer.New(initialSize, opts...),
		sizes: queue.New(),
	}
}

// Enqueue copies p as one packet at the tail of the queue.
// Empty packets are ignored.
func (q *SendQueue) Enqueue(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := q.buf.Append(p, 0, len(p)); err != nil {
		return err
	}
	q.sizes.Add(len(p))
	return nil
}

// AppendFunc lets fn write one packet directly into the queue storage. If fn
// fails, whatever it wrote is discarded and the error returned.
func (q *SendQueue) AppendFunc(fn func(dst *buffer.Buffer) error) error {
	mark := q.buf.Len()
	if err := fn(q.buf); err != nil {
		q.buf.Truncate(mark)
		return err
	}
	if n := q.buf.Len() - mark; n > 0 {
		q.sizes.Add(n)
	}
	return nil
}

// Len returns the number of packets not fully written.
func (q *SendQueue) Len() int { return q.sizes.Length() }

// Pending returns the number of bytes not yet written.
func (q *SendQueue) Pending() int { return q.buf.Len() }

// Flush writes the queued packets to w in FIFO order, in a single Write. On
// a short or failed write the remaining bytes stay queued and the next Flush
// resumes there.
func (q *SendQueue) Flush(w io.Writer) (int64, error) {
	pending := q.buf.Bytes()
	if len(pending) == 0 {
		return 0, nil
	}

	n, err := w.Write(pending)
	q.buf.Consume(n)
	q.advance(n)

	if err == nil && n < len(pending) {
		err = io.ErrShortWrite
	}
	return int64(n), err
}

// advance drops the sizes of the packets completed by n more written bytes.
func (q *SendQueue) advance(n int) {
	q.sent += n
	for q.sizes.Length() > 0 {
		size := q.sizes.Peek().(int)
		if q.sent < size {
			return
		}
		q.sent -= size
		q.sizes.Remove()
	}
}

// Clear drops every queued packet. The storage is kept.
func (q *SendQueue) Clear() {
	for q.sizes.Length() > 0 {
		q.sizes.Remove()
	}
	q.buf.ConsumeAll()
	q.sent = 0
}
