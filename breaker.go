package collector

import (
	"net"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// peerBreakers keeps one circuit breaker per remote host. Every decoded
// message is a request to the breaker and every malformed one a failure;
// while a peer's breaker is open its new connections are refused.
type peerBreakers struct {
	settings BreakerConfig
	onChange func(peer string, from, to gobreaker.State)

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newPeerBreakers(cfg BreakerConfig, onChange func(peer string, from, to gobreaker.State)) *peerBreakers {
	return &peerBreakers{
		settings: cfg,
		onChange: onChange,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker[struct{}]),
	}
}

func (p *peerBreakers) get(peer string) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[peer]; ok {
		return cb
	}

	minRequests := p.settings.MinRequests
	ratio := p.settings.FailureRatio
	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        peer,
		MaxRequests: p.settings.MaxRequests,
		Interval:    p.settings.Interval.Duration,
		Timeout:     p.settings.Timeout.Duration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: p.onChange,
	})
	p.breakers[peer] = cb
	return cb
}

// allow reports whether a new connection from peer may be served.
func (p *peerBreakers) allow(peer string) bool {
	p.mu.Lock()
	cb, ok := p.breakers[peer]
	p.mu.Unlock()

	return !ok || cb.State() != gobreaker.StateOpen
}

// record counts one message from peer.
func (p *peerBreakers) record(peer string, malformed bool) {
	done, err := p.get(peer).Allow()
	if err != nil {
		// Open, or half-open with its probe quota used: nothing to count.
		return
	}
	done(!malformed)
}

// state returns the breaker state for peer, closed when unknown.
func (p *peerBreakers) state(peer string) gobreaker.State {
	p.mu.Lock()
	cb, ok := p.breakers[peer]
	p.mu.Unlock()

	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// prune forgets closed breakers with nothing counted in the current interval.
func (p *peerBreakers) prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for peer, cb := range p.breakers {
		if cb.State() == gobreaker.StateClosed && cb.Counts().Requests == 0 {
			delete(p.breakers, peer)
			removed++
		}
	}
	return removed
}

// len returns the number of tracked peers.
func (p *peerBreakers) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.breakers)
}

// peerKey returns the host part of addr, so all connections from one host
// share a breaker.
func peerKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
