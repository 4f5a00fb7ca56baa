package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/collector/buffer"
	"github.com/pior/collector/internal/coarsetime"
	"github.com/pior/collector/token"
	"github.com/pior/collector/wire"
)

var ErrServerClosed = errors.New("collector: server closed")

// Server accepts connections and feeds the messages they carry to a Handler.
//
// Each connection is served by one goroutine holding a pooled token: bytes
// are read into the token's receive buffer, complete messages are framed,
// decoded and dispatched, and replies queued by the handler are flushed
// before the next read.
type Server struct {
	cfg      Config
	handler  Handler
	logger   zerolog.Logger
	now      func() time.Time
	term     string
	network  bool
	encoder  *wire.Encoder
	pool     token.Pool
	sharded  *token.ShardedPool
	breakers *peerBreakers
	onBreak  func(peer string, from, to gobreaker.State)

	stats statsCollector

	// ctx is canceled when Shutdown gives up waiting; it aborts pool waits.
	ctx    context.Context
	cancel context.CancelFunc

	reapOnce   sync.Once
	reapCtx    context.Context
	reapCancel context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]*token.Token
	shutdown  atomic.Bool
	wg        sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithPool replaces the token pool built from the configuration.
func WithPool(pool token.Pool) ServerOption {
	return func(s *Server) { s.pool = pool }
}

// WithClock sets the time source for token timestamps and the idle reaper.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// WithBreakerListener registers a function called on every peer breaker
// state change.
func WithBreakerListener(fn func(peer string, from, to gobreaker.State)) ServerOption {
	return func(s *Server) { s.onBreak = fn }
}

// WithTerminator sets the two-byte line terminator. The default is CRLF.
func WithTerminator(term string) ServerOption {
	return func(s *Server) { s.term = term }
}

// NewServer creates a server for cfg dispatching to h.
func NewServer(cfg Config, h Handler, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.New("collector: nil handler")
	}

	s := &Server{
		cfg:       cfg,
		handler:   h,
		logger:    zerolog.Nop(),
		now:       coarsetime.Now,
		term:      wire.CRLF,
		network:   cfg.ByteOrder == "network",
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]*token.Token),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.term) != 2 {
		return nil, &ConfigError{Key: "terminator", Reason: "must be two bytes"}
	}
	s.encoder = wire.NewEncoder(wire.WithTerminator(s.term))

	if s.pool == nil {
		if err := s.buildPool(); err != nil {
			return nil, err
		}
	}

	if cfg.Breaker.Enabled {
		s.breakers = newPeerBreakers(cfg.Breaker, func(peer string, from, to gobreaker.State) {
			s.logger.Warn().Str("peer", peer).Stringer("from", from).Stringer("to", to).Msg("peer breaker state changed")
			if s.onBreak != nil {
				s.onBreak(peer, from, to)
			}
		})
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.reapCtx, s.reapCancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Server) buildPool() error {
	growth := buffer.ExactFit
	if s.cfg.Pool.Growth == "double" {
		growth = buffer.Doubling
	}

	maxBuffer := s.cfg.MaxMessageSize
	if s.cfg.Framing == FramingPacket {
		maxBuffer += wire.PacketHeaderSize
	}

	constructor := token.NewConstructor(token.Config{
		ReceiveBufferSize: min(s.cfg.Pool.ReceiveBuffer, maxBuffer),
		SendBufferSize:    s.cfg.Pool.SendBuffer,
		MaxBufferSize:     maxBuffer,
		Growth:            growth,
		ReadTimeout:       s.cfg.ReadTimeout.Duration,
		WriteTimeout:      s.cfg.WriteTimeout.Duration,
		Now:               s.now,
	})

	newPool := token.NewPuddlePool
	if s.cfg.Pool.Kind == "channel" {
		newPool = token.NewChannelPool
	}

	if s.cfg.Pool.Shards > 1 {
		perShard := (s.cfg.Pool.MaxSize + int32(s.cfg.Pool.Shards) - 1) / int32(s.cfg.Pool.Shards)
		sharded, err := token.NewShardedPool(s.cfg.Pool.Shards, constructor, perShard, newPool)
		if err != nil {
			return fmt.Errorf("collector: create pool: %w", err)
		}
		s.pool, s.sharded = sharded, sharded
		return nil
	}

	pool, err := newPool(constructor, s.cfg.Pool.MaxSize)
	if err != nil {
		return fmt.Errorf("collector: create pool: %w", err)
	}
	s.pool = pool
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// done or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lc := listenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("collector: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It always returns a non-nil error; ErrServerClosed after a shutdown or a
// canceled ctx. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	if s.cfg.Pool.Warm > 0 {
		if err := token.Warm(ctx, s.pool, s.cfg.Pool.Warm); err != nil {
			return fmt.Errorf("collector: warm pool: %w", err)
		}
	}

	s.reapOnce.Do(func() { go s.reap(s.reapCtx) })

	s.logger.Info().Str("addr", ln.Addr().String()).Str("framing", string(s.cfg.Framing)).Msg("serving")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn().Err(err).Msg("accept")
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("collector: accept: %w", err)
		}

		peer := peerKey(conn.RemoteAddr())
		if s.breakers != nil && !s.breakers.allow(peer) {
			s.stats.rejected.Add(1)
			s.logger.Debug().Str("peer", peer).Msg("connection refused, peer breaker open")
			_ = conn.Close()
			continue
		}

		if !s.trackConn(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		tuneConn(conn)

		go func() {
			defer s.wg.Done()
			defer s.untrackConn(conn)
			s.serveConn(ctx, conn, peer)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, peer string) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	res, err := s.acquire(peer)
	if err != nil {
		s.stats.rejected.Add(1)
		s.logger.Warn().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("no token for connection")
		return
	}
	defer res.Release()

	tok := res.Value()
	tok.Assign(conn)
	s.bindToken(conn, tok)
	defer s.bindToken(conn, nil)

	s.stats.accepted.Add(1)
	s.stats.active.Add(1)
	defer s.stats.active.Add(-1)

	log := s.logger.With().Str("peer", conn.RemoteAddr().String()).Uint64("token", tok.ID()).Logger()
	log.Debug().Msg("connection opened")

	req := &Request{
		Message:    s.decoder(tok),
		Token:      tok,
		RemoteAddr: conn.RemoteAddr(),
		encoder:    s.encoder,
		framing:    s.cfg.Framing,
		network:    s.network,
	}

	for !s.shuttingDown() {
		n, rerr := tok.Receive()
		s.stats.bytesIn.Add(uint64(n))

		perr := s.process(ctx, req, peer, log)
		if errors.Is(rerr, buffer.ErrTooLarge) && perr == nil {
			s.malformed(peer)
			perr = &wire.FrameError{Size: int64(tok.ReceiveBuffer().Len()), Err: wire.ErrPacketTooLarge}
			_ = req.ReplyError(wire.CodeMalformed, malformedReason(perr))
		}

		if ferr := s.flush(tok); ferr != nil {
			log.Debug().Err(ferr).Msg("write failed")
			return
		}
		if perr != nil {
			log.Debug().Err(perr).Msg("closing connection")
			return
		}
		if rerr != nil {
			if !isClosedErr(rerr) && !s.shuttingDown() {
				log.Warn().Err(rerr).Msg("read failed")
			}
			log.Debug().Msg("connection closed")
			return
		}
	}
}

// process handles every complete message in the receive buffer. A non-nil
// error means the connection must be closed.
func (s *Server) process(ctx context.Context, req *Request, peer string, log zerolog.Logger) error {
	buf := req.Token.ReceiveBuffer()
	dec := req.Message

	for buf.Len() > 0 {
		body, n, err := s.split(buf.Bytes())
		if err != nil {
			s.malformed(peer)
			_ = req.ReplyError(wire.CodeMalformed, malformedReason(err))
			return err
		}
		if n == 0 {
			return nil
		}

		if s.cfg.Framing == FramingLine && wire.Blank(body, s.term) {
			buf.Consume(n)
			continue
		}

		derr := dec.DecodeBytes(body)
		buf.Consume(n)

		if derr != nil {
			s.malformed(peer)
			log.Debug().Err(derr).Msg("malformed message")
			_ = req.ReplyError(wire.CodeMalformed, malformedReason(derr))
			if s.cfg.Malformed == MalformedClose || wire.ShouldCloseConnection(derr) {
				return derr
			}
			continue
		}

		if s.breakers != nil {
			s.breakers.record(peer, false)
		}
		s.stats.messages.Add(1)

		req.replies = 0
		if herr := s.handler.ServeMessage(ctx, req); herr != nil {
			s.stats.handlerErrors.Add(1)
			log.Debug().Err(herr).Str("command", dec.Command()).Msg("handler failed")
			_ = req.ReplyError(handlerErrorCode(herr), handlerErrorMessage(herr))
			if closesConnection(herr) {
				return herr
			}
		}
	}
	return nil
}

func (s *Server) split(data []byte) ([]byte, int, error) {
	if s.cfg.Framing == FramingLine {
		n, ok := wire.SplitMessage(data, s.term)
		if !ok {
			return nil, 0, nil
		}
		return data[:n], n, nil
	}
	return wire.SplitPacket(data, s.network, s.cfg.MaxMessageSize)
}

func (s *Server) flush(tok *token.Token) error {
	if tok.SendQueue().Len() == 0 {
		return nil
	}
	n, err := tok.Flush()
	s.stats.bytesOut.Add(uint64(n))
	return err
}

func (s *Server) malformed(peer string) {
	s.stats.malformed.Add(1)
	if s.breakers != nil {
		s.breakers.record(peer, true)
	}
}

// decoder returns the decoder attached to tok, creating it on first use.
func (s *Server) decoder(tok *token.Token) *wire.Decoder {
	if d, ok := tok.Session().(*wire.Decoder); ok {
		return d
	}
	d := wire.NewDecoder(wire.WithTerminator(s.term))
	tok.SetSession(d)
	return d
}

func (s *Server) acquire(peer string) (token.Resource, error) {
	ctx := s.ctx
	if timeout := s.cfg.Pool.AcquireTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if s.sharded != nil {
		return s.sharded.AcquireFor(ctx, peer)
	}
	return s.pool.Acquire(ctx)
}

// reap closes connections idle for longer than the idle timeout.
func (s *Server) reap(ctx context.Context) {
	if s.cfg.IdleTimeout.Duration <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.ReapInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.reapIdle(); n > 0 {
				s.logger.Debug().Int("closed", n).Msg("reaped idle connections")
			}
		}
	}
}

func (s *Server) reapIdle() int {
	now := s.now()
	timeout := s.cfg.IdleTimeout.Duration

	var idle []net.Conn
	s.mu.Lock()
	for conn, tok := range s.conns {
		if tok != nil && tok.IdleFor(now) > timeout {
			idle = append(idle, conn)
		}
	}
	s.mu.Unlock()

	for _, conn := range idle {
		_ = conn.Close()
	}
	s.stats.reaped.Add(uint64(len(idle)))

	if s.breakers != nil {
		s.breakers.prune()
	}
	return len(idle)
}

// Shutdown stops accepting connections, lets the active ones finish the
// messages already received, and waits for them to end. If ctx is done
// first, the remaining connections are closed and ctx.Err() returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	for ln := range s.listeners {
		_ = ln.Close()
	}
	now := time.Now()
	for conn := range s.conns {
		stopReading(conn, now)
	}
	s.mu.Unlock()

	s.reapCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.cancel()
		s.closeConns()
		<-done
	}

	s.cancel()
	s.pool.Close()
	s.logger.Info().Msg("server stopped")
	return err
}

// stopReading unblocks a pending read on conn while leaving writes open for
// the replies still queued. The read half is closed where the connection
// supports it: a configured read timeout moves the deadline on every read.
func stopReading(conn net.Conn, now time.Time) {
	_ = conn.SetReadDeadline(now)
	if cr, ok := conn.(interface{ CloseRead() error }); ok {
		_ = cr.CloseRead()
	}
}

// Addr returns the address of a listener being served, nil if none.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		return ln.Addr()
	}
	return nil
}

// Stats returns a snapshot of the server and pool statistics.
func (s *Server) Stats() ServerStats {
	stats := s.stats.snapshot()
	stats.Pool = s.pool.Stats()
	if s.breakers != nil {
		stats.BreakerPeers = int64(s.breakers.len())
	}
	return stats
}

// PeerState returns the breaker state for the host of addr.
func (s *Server) PeerState(addr net.Addr) gobreaker.State {
	if s.breakers == nil {
		return gobreaker.StateClosed
	}
	return s.breakers.state(peerKey(addr))
}

func (s *Server) shuttingDown() bool {
	return s.shutdown.Load()
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shutdown.Load() {
			return false
		}
		s.listeners[ln] = struct{}{}
		return true
	}
	delete(s.listeners, ln)
	return true
}

// trackConn registers conn and counts it in the wait group, unless the
// server is shutting down.
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = nil
	s.wg.Add(1)
	return true
}

func (s *Server) bindToken(conn net.Conn, tok *token.Token) {
	s.mu.Lock()
	s.conns[conn] = tok
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func malformedReason(err error) string {
	switch {
	case errors.Is(err, wire.ErrTooManyEquals):
		return "more than one equals sign on a line"
	case errors.Is(err, wire.ErrInsufficientLines):
		return "a message needs at least two lines"
	case errors.Is(err, wire.ErrNoTerminator):
		return "missing terminator"
	case errors.Is(err, wire.ErrPacketTooLarge):
		return "message too large"
	case errors.Is(err, wire.ErrNegativeLength):
		return "negative packet length"
	}
	return "malformed message"
}

func handlerErrorCode(err error) int {
	var fieldErr *wire.FieldError
	var invalidErr *wire.InvalidFieldError
	if errors.As(err, &fieldErr) || errors.As(err, &invalidErr) {
		return wire.CodeInvalidField
	}
	return wire.CodeInternal
}

func handlerErrorMessage(err error) string {
	if handlerErrorCode(err) == wire.CodeInvalidField {
		return err.Error()
	}
	return "internal error"
}

// closesConnection reports whether a handler error asks for the connection to
// be closed. Errors that do not say are not fatal.
func closesConnection(err error) bool {
	var e wire.ErrorWithConnectionState
	return errors.As(err, &e) && e.ShouldCloseConnection()
}
