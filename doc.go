// Package collector is a TCP server for a line-oriented key/value protocol.
//
// Peers send messages made of name=value lines; the server frames them,
// decodes them with package wire and hands them to a Handler:
//
//	mux := collector.NewMux()
//	mux.HandleFunc("ping", func(ctx context.Context, req *collector.Request) error {
//	    return req.Reply("pong", "code", "0")
//	})
//
//	srv, err := collector.NewServer(collector.DefaultConfig(), mux)
//	if err != nil {
//	    return err
//	}
//	go srv.ListenAndServe(ctx)
//	defer srv.Shutdown(context.Background())
//
// # Connections
//
// Every connection borrows a token from a pool (package token). The token owns
// the receive buffer that accumulates partial messages and the send queue for
// replies; both are reused, cleared, from one connection to the next. The
// pool is backed by puddle by default, or by a channel, optionally sharded by
// peer address.
//
// # Framing
//
// Messages are either length-prefixed packets (FramingPacket, 4-byte prefix
// in network or host byte order) or blank-line delimited text (FramingLine).
//
// # Malformed input
//
// A message the decoder rejects gets an error reply. With MalformedDrop the
// connection keeps going; with MalformedClose it is closed. An invalid packet
// header always closes the connection since the stream cannot be resynced.
//
// Malformed messages also count against a per-host circuit breaker; while it
// is open, new connections from that host are refused.
//
// # Idle connections
//
// Connections that stay silent for longer than IdleTimeout are closed by a
// reaper running every ReapInterval.
package collector
