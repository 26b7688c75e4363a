// Package kerr defines the keeper's error taxonomy: every
// fallible operation in the keeper returns a *kerr.Error so the
// orchestrator and executors can switch on Kind() to decide whether to
// retry, skip, or abort.
package kerr

import "fmt"

// Kind classifies a keeper error.
type Kind string

const (
	// Config is a fatal, invalid or missing configuration error.
	Config Kind = "config"
	// ChainRpc is a node-unreachable or malformed-response error, retried
	// indefinitely with capped exponential backoff.
	ChainRpc Kind = "chain_rpc"
	// InvalidOracle means the oracle returned valid=false.
	InvalidOracle Kind = "invalid_oracle"
	// InsufficientFunds means a wallet/Vat/pocket balance was too low.
	InsufficientFunds Kind = "insufficient_funds"
	// LimitExceeded means a debt ceiling, pool-trade cap, or slippage
	// bound was violated.
	LimitExceeded Kind = "limit_exceeded"
	// TxReverted means a transaction mined but reverted.
	TxReverted Kind = "tx_reverted"
	// TxUnderpriced means the node rejected the transaction as underpriced.
	TxUnderpriced Kind = "tx_underpriced"
	// TxUnknown means a receipt wait timed out twice; outcome unknown.
	TxUnknown Kind = "tx_unknown"
	// Interrupted means a shutdown signal was received.
	Interrupted Kind = "interrupted"
)

// Error is the keeper's structured error type.
type Error struct {
	Kind Kind
	Message string
	TxHash string
	RevertReason string
	Cause error
}

// New builds an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithTx attaches a transaction hash / revert reason to an error (e.g. for
// TxReverted).
func (e *Error) WithTx(hash, revertReason string) *Error {
	e.TxHash = hash
	e.RevertReason = revertReason
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *kerr.Error of the same Kind, enabling
// errors.Is(err, kerr.New(kerr.ChainRpc, "")) style checks against just the
// kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *kerr.Error, and
// reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var kerrErr *Error
	for err != nil {
		if ke, ok := err.(*Error); ok {
			kerrErr = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if kerrErr == nil {
		return "", false
	}
	return kerrErr.Kind, true
}
