// Package txgate enforces the single shared wallet-nonce resource: exactly
// one send may be in flight at a time, and a configurable gap is honored
// between sends so the node has time to mine and nonces never collide.
package txgate

import (
	"sync"
	"time"
)

// DefaultGap is the pause enforced between consecutive sends.
const DefaultGap = 2 * time.Second

// Gate serializes every transaction send in the keeper behind one mutex.
type Gate struct {
	mu sync.Mutex
	gap time.Duration
	lastSend time.Time
}

// New builds a Gate with the given inter-send gap; zero selects DefaultGap.
func New(gap time.Duration) *Gate {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Gate{gap: gap}
}

// Do runs fn while holding the exclusive send lock, first waiting out any
// remaining gap since the previous send. The returned error is fn's error.
func (g *Gate) Do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if wait := g.gap - time.Since(g.lastSend); wait > 0 {
		time.Sleep(wait)
	}
	err := fn()
	g.lastSend = time.Now()
	return err
}
