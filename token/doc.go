// Package token provides the pooled per-connection state of the server.
//
// A Token binds a connection to a receive buffer, a send queue and activity
// timestamps. Tokens are created once and reused: Assign attaches a new
// connection, Clear empties both buffers and detaches it. The buffers keep
// their storage, so a warm pool serves new connections without allocating.
//
// Pools hand tokens to connection handlers:
//
//	pool, _ := token.NewPuddlePool(token.NewConstructor(token.DefaultConfig()), 1024)
//	res, err := pool.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer res.Release() // clears the token
//
//	tok := res.Value()
//	tok.Assign(conn)
//
// NewPuddlePool is the default implementation, NewChannelPool an alternative
// with fewer allocations. ShardedPool spreads tokens over several pools and
// can pin a peer to one of them with AcquireFor.
//
// Idle detection is left to the owner: LastActiveAt and IdleFor are safe to
// read from another goroutine, everything else is not.
package token
