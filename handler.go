package collector

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pior/collector/buffer"
	"github.com/pior/collector/token"
	"github.com/pior/collector/wire"
)

// Handler processes one decoded message.
//
// The request, its decoder and its token are only valid during the call.
// Returning an error sends an error reply to the peer; the connection is
// closed if wire.ShouldCloseConnection reports true for it.
type Handler interface {
	ServeMessage(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) error

func (f HandlerFunc) ServeMessage(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Request is a decoded message with the means to answer it.
type Request struct {
	// Message gives access to the command and the fields.
	Message *wire.Decoder

	// Token is the connection state. Handlers may queue raw packets on
	// Token.SendQueue() but must not Assign or Clear it.
	Token *token.Token

	// RemoteAddr is the peer address.
	RemoteAddr net.Addr

	encoder *wire.Encoder
	framing Framing
	network bool
	replies int
}

// Command returns the message command.
func (r *Request) Command() string { return r.Message.Command() }

// Reply queues a message for the peer. fields are name/value pairs; an odd
// trailing name gets an empty value. Replies are flushed after the handler
// returns.
func (r *Request) Reply(cmd string, fields ...string) error {
	return r.ReplyMessage(wire.NewMessage(cmd, fields...))
}

// ReplyMessage queues msg for the peer.
func (r *Request) ReplyMessage(msg wire.Message) error {
	err := r.Token.SendQueue().AppendFunc(func(dst *buffer.Buffer) error {
		if r.framing == FramingPacket {
			return r.encoder.AppendPacket(dst, msg, r.network)
		}
		return r.encoder.Append(dst, msg)
	})
	if err == nil {
		r.replies++
	}
	return err
}

// ReplyError queues an error reply with a code and a short message.
func (r *Request) ReplyError(code int, message string) error {
	return r.Reply(wire.CmdError, wire.KeyCode, strconv.Itoa(code), wire.KeyMessage, sanitize(message))
}

// Replied reports whether the handler queued at least one reply.
func (r *Request) Replied() bool { return r.replies > 0 }

// sanitize makes text safe as a field value.
func sanitize(text string) string {
	return strings.NewReplacer("=", ":", "\r", " ", "\n", " ").Replace(text)
}

// Mux routes messages to handlers by command. Commands match
// case-insensitively.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	notFound Handler
}

// NewMux returns an empty Mux. Unknown commands get an error reply with
// wire.CodeUnknownCommand.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers h for cmd, replacing any previous handler.
func (m *Mux) Handle(cmd string, h Handler) {
	m.mu.Lock()
	m.handlers[strings.ToLower(cmd)] = h
	m.mu.Unlock()
}

// HandleFunc registers f for cmd.
func (m *Mux) HandleFunc(cmd string, f func(ctx context.Context, req *Request) error) {
	m.Handle(cmd, HandlerFunc(f))
}

// NotFound sets the handler for unregistered commands and messages without
// a command.
func (m *Mux) NotFound(h Handler) {
	m.mu.Lock()
	m.notFound = h
	m.mu.Unlock()
}

func (m *Mux) ServeMessage(ctx context.Context, req *Request) error {
	m.mu.RLock()
	h, ok := m.handlers[strings.ToLower(req.Command())]
	if !ok {
		h = m.notFound
	}
	m.mu.RUnlock()

	if h == nil {
		return req.ReplyError(wire.CodeUnknownCommand, "unknown command "+req.Command())
	}
	return h.ServeMessage(ctx, req)
}
