package collector

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pior/collector/buffer"
	"github.com/pior/collector/internal"
	"github.com/pior/collector/wire"
)

var ErrConnectionClosed = errors.New("collector: connection closed")

// ClientConfig configures a ClientConn.
type ClientConfig struct {
	Framing        Framing
	Network        bool // big-endian packet length prefix
	MaxMessageSize int
	DialTimeout    time.Duration
}

// DefaultClientConfig matches DefaultConfig.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Framing:        FramingPacket,
		Network:        true,
		MaxMessageSize: wire.DefaultMaxPacketSize,
		DialTimeout:    5 * time.Second,
	}
}

var clientBuffers = internal.NewBufferPool(4096)

// ClientConn is a connection to a collector server. It is safe for
// concurrent use; calls to Do are serialised.
type ClientConn struct {
	cfg  ClientConfig
	conn net.Conn

	mu      sync.Mutex
	recv    *buffer.Buffer
	decoder *wire.Decoder
	encoder *wire.Encoder
	closed  bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*ClientConn, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientConn(conn, cfg), nil
}

// NewClientConn wraps an established connection.
func NewClientConn(conn net.Conn, cfg ClientConfig) *ClientConn {
	if cfg.Framing == "" {
		cfg.Framing = FramingPacket
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = wire.DefaultMaxPacketSize
	}
	maxSize := cfg.MaxMessageSize + wire.PacketHeaderSize
	return &ClientConn{
		cfg:     cfg,
		conn:    conn,
		recv:    buffer.New(min(4096, maxSize), buffer.WithMaxSize(maxSize)),
		decoder: wire.NewDecoder(),
		encoder: wire.NewEncoder(),
	}
}

// Do sends msgs in one write and reads one reply per message, in order.
// Replies with the error command are returned as messages, not errors.
func (c *ClientConn) Do(ctx context.Context, msgs ...wire.Message) ([]wire.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	out := clientBuffers.Get()
	defer clientBuffers.Put(out)

	for _, msg := range msgs {
		var err error
		if c.cfg.Framing == FramingPacket {
			err = c.encoder.AppendPacket(out, msg, c.cfg.Network)
		} else {
			err = c.encoder.Append(out, msg)
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := out.WriteTo(c.conn); err != nil {
		c.markClosed()
		return nil, err
	}

	replies := make([]wire.Message, 0, len(msgs))
	for range msgs {
		reply, err := c.readReply()
		if err != nil {
			c.markClosed()
			return replies, err
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

func (c *ClientConn) readReply() (wire.Message, error) {
	for {
		body, n, err := c.split()
		if err != nil {
			return wire.Message{}, err
		}
		if n > 0 && c.cfg.Framing == FramingLine && wire.Blank(body, wire.CRLF) {
			c.recv.Consume(n)
			continue
		}
		if n > 0 {
			err := c.decoder.DecodeBytes(body)
			c.recv.Consume(n)
			if err != nil {
				return wire.Message{}, err
			}
			return c.decoder.Message(), nil
		}

		if _, err := c.recv.ReadFrom(c.conn); err != nil {
			return wire.Message{}, err
		}
	}
}

func (c *ClientConn) split() ([]byte, int, error) {
	data := c.recv.Bytes()
	if c.cfg.Framing == FramingLine {
		n, ok := wire.SplitMessage(data, wire.CRLF)
		if !ok {
			return nil, 0, nil
		}
		return data[:n], n, nil
	}
	return wire.SplitPacket(data, c.cfg.Network, c.cfg.MaxMessageSize)
}

// Ping sends a ping and checks the pong.
func (c *ClientConn) Ping(ctx context.Context) error {
	replies, err := c.Do(ctx, wire.NewMessage(wire.CmdPing, wire.KeySeq, "0"))
	if err != nil {
		return err
	}
	if replies[0].Command != wire.CmdPong {
		return errors.New("collector: unexpected reply " + replies[0].Command)
	}
	return nil
}

// RemoteAddr returns the server address.
func (c *ClientConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the connection.
func (c *ClientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.markClosed()
	return c.conn.Close()
}

// markClosed must be called with the lock held.
func (c *ClientConn) markClosed() {
	c.closed = true
}
