// Package txlistener waits for a submitted transaction to be mined and
// turns the go-ethereum receipt into the keeper's own pkg/types.TxReceipt.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kusd-keeper/keeper/pkg/types"
)

// ErrReceiptTimeout is returned when a transaction still hasn't confirmed
// after WaitForTransaction's internal retry; callers treat it as an
// unknown outcome (kerr.TxUnknown), not a failure.
var ErrReceiptTimeout = errors.New("txlistener: timed out waiting for receipt")

// TxListener polls for a transaction receipt at a fixed interval.
type TxListener struct {
	client *ethclient.Client
	pollInterval time.Duration
	timeout time.Duration
}

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often the listener polls for the receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will wait before returning
// ErrReceiptTimeout. default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// NewTxListener builds a TxListener with sane defaults (3s poll, 60s
// timeout), overridable via options.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		client: client,
		pollInterval: 3 * time.Second,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction polls until the receipt is mined or both the original
// wait and one retry time out. A bare timeout is retried exactly once
// before being surfaced, since a slow node is often just behind, not stuck;
// every caller then treats the remaining ErrReceiptTimeout as an unknown
// outcome (kerr.TxUnknown) rather than a failure. Cancellation does not roll
// back the on-chain effect.
func (l *TxListener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	receipt, err := l.waitOnce(hash)
	if err != nil && errors.Is(err, ErrReceiptTimeout) {
		receipt, err = l.waitOnce(hash)
	}
	return receipt, err
}

// waitOnce runs a single bounded poll loop for hash's receipt.
func (l *TxListener) waitOnce(hash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return l.decode(ctx, receipt)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// decode turns a go-ethereum receipt into the keeper's plain TxReceipt,
// fetching the revert reason via eth_call replay when the transaction
// failed and the node supports it.
func (l *TxListener) decode(ctx context.Context, receipt *gethtypes.Receipt) (*types.TxReceipt, error) {
	out := &types.TxReceipt{
		TxHash: receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status: receipt.Status,
		GasUsed: fmt.Sprintf("%d", receipt.GasUsed),
		EffectiveGasPrice: "0",
	}
	if receipt.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = receipt.EffectiveGasPrice.String()
	}
	for _, log := range receipt.Logs {
		out.Logs = append(out.Logs, types.Log{
			Address: log.Address,
			Topics: log.Topics,
			Data: log.Data,
		})
	}

	if receipt.Status == gethtypes.ReceiptStatusFailed {
		out.RevertReason = l.revertReason(ctx, receipt)
	}

	return out, nil
}

// revertReason replays the failed transaction as an eth_call at the
// receipt's block to recover the human-readable revert string, when the
// node returns one. Errors are swallowed: an empty reason is a valid,
// common outcome.
func (l *TxListener) revertReason(ctx context.Context, receipt *gethtypes.Receipt) string {
	tx, _, err := l.client.TransactionByHash(ctx, receipt.TxHash)
	if err != nil || tx == nil {
		return ""
	}
	to := tx.To()
	if to == nil {
		return ""
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return ""
	}
	_, err = l.client.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To: to,
		Gas: tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value: tx.Value(),
		Data: tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	return err.Error()
}
