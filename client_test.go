package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/collector/wire"
)

func dialClient(t *testing.T, addr string, cfg ClientConfig) *ClientConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := Dial(ctx, addr, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientConn_Ping(t *testing.T) {
	_, addr := startServer(t, testConfig(), echoMux())
	c := dialClient(t, addr, DefaultClientConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Ping(ctx))
}

func TestClientConn_Pipelined(t *testing.T) {
	for _, framing := range []Framing{FramingPacket, FramingLine} {
		t.Run(string(framing), func(t *testing.T) {
			cfg := testConfig()
			cfg.Framing = framing
			_, addr := startServer(t, cfg, echoMux())

			ccfg := DefaultClientConfig()
			ccfg.Framing = framing
			c := dialClient(t, addr, ccfg)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			replies, err := c.Do(ctx,
				wire.NewMessage(wire.CmdPing, wire.KeySeq, "1"),
				wire.NewMessage(wire.CmdPing, wire.KeySeq, "2"),
				wire.NewMessage("nope", wire.KeySeq, "3"),
			)
			require.NoError(t, err)
			require.Len(t, replies, 3)

			assert.Equal(t, wire.NewMessage(wire.CmdPong, wire.KeySeq, "1"), replies[0])
			assert.Equal(t, wire.NewMessage(wire.CmdPong, wire.KeySeq, "2"), replies[1])
			assert.Equal(t, wire.CmdError, replies[2].Command)
			assert.Equal(t, wire.Field{Name: wire.KeyCode, Value: "2"}, replies[2].Fields[0])
		})
	}
}

func TestClientConn_EmptyBatch(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClientConn(client, ClientConfig{})
	defer c.Close()

	replies, err := c.Do(context.Background())
	require.NoError(t, err)
	assert.Nil(t, replies)
}

func TestClientConn_Closed(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClientConn(client, ClientConfig{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Do(context.Background(), wire.NewMessage(wire.CmdPing, wire.KeySeq, "1"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestClientConn_CanceledContext(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClientConn(client, ClientConfig{})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, wire.NewMessage(wire.CmdPing, wire.KeySeq, "1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientConn_DeadlineExceeded(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	// Swallow the request and never answer.
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	c := NewClientConn(client, ClientConfig{})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, wire.NewMessage(wire.CmdPing, wire.KeySeq, "1"))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	_, err = c.Do(context.Background(), wire.NewMessage(wire.CmdPing, wire.KeySeq, "1"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
