// Package executor dispatches the transactions the monitors' opportunities
// call for: liquidations, collateral takes, English-auction bids, and peg
// arbitrage legs. Every executor re-checks its preconditions against fresh
// chain state immediately before sending, never trusting the snapshot it
// was handed.
package executor

import "sync/atomic"

// EmergencyStop is the global kill switch every executor's pre-flight
// checks against. It is safe for concurrent use; typically one instance is
// shared across all executors and set once at startup from the
// EMERGENCY_STOP configuration.
type EmergencyStop struct {
	stopped atomic.Bool
}

// Set arms or disarms the stop.
func (s *EmergencyStop) Set(stopped bool) { s.stopped.Store(stopped) }

// Stopped reports whether the stop is currently armed.
func (s *EmergencyStop) Stopped() bool { return s.stopped.Load() }
