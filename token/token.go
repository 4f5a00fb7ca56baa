package token

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/pior/collector/buffer"
	"github.com/pior/collector/internal/coarsetime"
)

var ErrNotAssigned = errors.New("token: no connection assigned")

// Config sizes the resources owned by a token.
type Config struct {
	// ReceiveBufferSize is the initial capacity of the receive buffer.
	ReceiveBufferSize int

	// SendBufferSize is the initial capacity of the send queue storage.
	SendBufferSize int

	// MaxBufferSize caps both buffers. Zero means no limit.
	MaxBufferSize int

	// Growth is the growth policy of both buffers. Nil means buffer.ExactFit.
	Growth buffer.GrowthPolicy

	// ReadTimeout and WriteTimeout set a deadline before each read and write
	// performed through the token's I/O contexts. Zero means no deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Now returns the current time for the token timestamps.
	// If nil, a coarse clock with 50ms resolution is used.
	Now func() time.Time
}

// DefaultConfig returns the default token configuration.
func DefaultConfig() Config {
	return Config{
		ReceiveBufferSize: 4096,
		SendBufferSize:    4096,
	}
}

// IOContext is the descriptor a token hands to the I/O layer for one
// direction of the connection. The connection assigned to the token is
// propagated to both of its contexts.
type IOContext struct {
	conn    net.Conn
	timeout time.Duration
	ops     uint64
	bytes   uint64
}

// Conn returns the connection bound to the context, nil when idle.
func (c *IOContext) Conn() net.Conn { return c.conn }

// Ops returns the number of successful operations since the token was created.
func (c *IOContext) Ops() uint64 { return c.ops }

// Bytes returns the number of bytes transferred since the token was created.
func (c *IOContext) Bytes() uint64 { return c.bytes }

// Read reads from the bound connection, setting the read deadline first when
// a timeout is configured.
func (c *IOContext) Read(p []byte) (int, error) {
	if c.conn == nil {
		return 0, ErrNotAssigned
	}
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.conn.Read(p)
	c.account(n)
	return n, err
}

// Write writes to the bound connection, setting the write deadline first when
// a timeout is configured.
func (c *IOContext) Write(p []byte) (int, error) {
	if c.conn == nil {
		return 0, ErrNotAssigned
	}
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.conn.Write(p)
	c.account(n)
	return n, err
}

func (c *IOContext) account(n int) {
	if n > 0 {
		c.ops++
		c.bytes += uint64(n)
	}
}

// Token is the pooled per-connection resource bundle: the socket, a receive
// buffer accumulating partial messages, a send queue, and lifecycle
// timestamps.
//
// The receive buffer and the send queue are allocated once, when the token is
// created, and keep their identity for the token's whole life. Assign binds a
// new connection, Clear resets both and detaches the connection so the token
// can serve the next one.
//
// A token must be used by a single goroutine at a time. The pool hands it
// over; Token itself does not synchronise Assign and Clear. LastActiveAt is
// the exception and may be read concurrently, for idle detection.
type Token struct {
	id   uint64
	conn net.Conn

	recv *buffer.Buffer
	send *SendQueue

	recvCtx IOContext
	sendCtx IOContext

	now         func() time.Time
	connectedAt time.Time
	lastActive  atomic.Int64

	session any
}

// New creates a token with its buffers allocated.
func New(id uint64, config Config) *Token {
	now := config.Now
	if now == nil {
		now = coarsetime.Now
	}

	opts := []buffer.Option{
		buffer.WithGrowth(config.Growth),
		buffer.WithMaxSize(config.MaxBufferSize),
	}

	return &Token{
		id:      id,
		recv:    buffer.New(config.ReceiveBufferSize, opts...),
		send:    NewSendQueue(config.SendBufferSize, opts...),
		recvCtx: IOContext{timeout: config.ReadTimeout},
		sendCtx: IOContext{timeout: config.WriteTimeout},
		now:     now,
	}
}

// ID returns the identifier given at creation. It is stable across reuse.
func (t *Token) ID() uint64 { return t.id }

// Assign binds conn to the token and to both I/O contexts, and stamps the
// connection time. Assign(nil) is Clear.
func (t *Token) Assign(conn net.Conn) {
	if conn == nil {
		t.Clear()
		return
	}

	t.conn = conn
	t.recvCtx.conn = conn
	t.sendCtx.conn = conn

	now := t.now()
	t.connectedAt = now
	t.lastActive.Store(now.UnixNano())
}

// Clear empties the receive buffer and the send queue together and detaches
// the connection from the token and its I/O contexts. It does not close the
// connection.
//
// This is the only place both directions are reset, so a token handed to a
// new connection never exposes bytes left over from the previous one.
func (t *Token) Clear() {
	t.recv.ConsumeAll()
	t.send.Clear()

	t.conn = nil
	t.recvCtx.conn = nil
	t.sendCtx.conn = nil

	t.connectedAt = time.Time{}
	t.lastActive.Store(0)
}

// Touch records activity on the connection.
func (t *Token) Touch() {
	t.lastActive.Store(t.now().UnixNano())
}

// Conn returns the bound connection, nil when the token is idle.
func (t *Token) Conn() net.Conn { return t.conn }

// Assigned reports whether a connection is bound.
func (t *Token) Assigned() bool { return t.conn != nil }

// ReceiveBuffer returns the buffer accumulating received bytes.
func (t *Token) ReceiveBuffer() *buffer.Buffer { return t.recv }

// SendQueue returns the outbound queue.
func (t *Token) SendQueue() *SendQueue { return t.send }

// ReceiveContext returns the I/O descriptor for the receive side.
func (t *Token) ReceiveContext() *IOContext { return &t.recvCtx }

// SendContext returns the I/O descriptor for the send side.
func (t *Token) SendContext() *IOContext { return &t.sendCtx }

// ConnectedAt returns when the current connection was assigned, zero when idle.
func (t *Token) ConnectedAt() time.Time { return t.connectedAt }

// LastActiveAt returns the last Touch or Assign time, zero when idle.
// Safe for concurrent use.
func (t *Token) LastActiveAt() time.Time {
	ns := t.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// IdleFor returns how long the connection has been inactive at now, zero when
// the token is idle. Safe for concurrent use.
func (t *Token) IdleFor(now time.Time) time.Duration {
	ns := t.lastActive.Load()
	if ns == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, ns))
}

// Receive reads once from the connection into the receive buffer and records
// the activity.
func (t *Token) Receive() (int, error) {
	n, err := t.recv.ReadFrom(&t.recvCtx)
	if n > 0 {
		t.Touch()
	}
	return int(n), err
}

// Flush writes the queued packets to the connection.
func (t *Token) Flush() (int64, error) {
	n, err := t.send.Flush(&t.sendCtx)
	if n > 0 {
		t.Touch()
	}
	return n, err
}

// Session returns the value attached with SetSession.
func (t *Token) Session() any { return t.session }

// SetSession attaches per-token state, such as a decoder, that the owner
// wants to reuse across connections. Clear keeps it.
func (t *Token) SetSession(v any) { t.session = v }
