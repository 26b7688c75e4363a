// Package chainfakes provides in-memory stand-ins for the chain façade and
// contract client interfaces, so monitor, executor, and vat tests never
// need a live RPC endpoint.
package chainfakes

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/kusd-keeper/keeper/pkg/types"
)

// ContractClient is a scriptable fake of contractclient.ContractClient.
// Tests set CallFunc/SendFunc to return canned results; unset funcs panic
// if invoked, surfacing tests that exercise an unexpected call.
type ContractClient struct {
	Address common.Address
	ABI     abi.ABI

	CallFunc             func(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	SendFunc             func(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	TransactionDataFunc  func(hash common.Hash) ([]byte, error)
	DecodeTransactionFunc func(data []byte) (*types.DecodedTransaction, error)
	ParseReceiptFunc     func(receipt *types.TxReceipt) (string, error)

	// Calls records every method name invoked, in order, for assertions on
	// call sequencing (e.g. the per-leg re-approval pattern in peg arb).
	Calls []string
}

func (f *ContractClient) ContractAddress() common.Address { return f.Address }
func (f *ContractClient) Abi() *abi.ABI                    { return &f.ABI }

func (f *ContractClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	f.Calls = append(f.Calls, "call:"+method)
	return f.CallFunc(from, method, args...)
}

func (f *ContractClient) Send(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	f.Calls = append(f.Calls, "send:"+method)
	return f.SendFunc(txType, gasLimit, from, pk, method, args...)
}

func (f *ContractClient) TransactionData(hash common.Hash) ([]byte, error) {
	return f.TransactionDataFunc(hash)
}

func (f *ContractClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	return f.DecodeTransactionFunc(data)
}

func (f *ContractClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	if f.ParseReceiptFunc != nil {
		return f.ParseReceiptFunc(receipt)
	}
	return "[]", nil
}

// ChainReader is a scriptable fake of the chain façade's read surface
// (monitor.ChainReader): current block, log queries, and subscriptions.
type ChainReader struct {
	Head       uint64
	Logs       []gethtypes.Log
	LogsErr    error
	SubChan    chan gethtypes.Log
	SubErrChan chan error
}

func (c *ChainReader) CurrentBlock(ctx context.Context) (uint64, error) {
	return c.Head, nil
}

func (c *ChainReader) GetLogs(ctx context.Context, filter ethereum.FilterQuery, from, to uint64) ([]gethtypes.Log, error) {
	if c.LogsErr != nil {
		return nil, c.LogsErr
	}
	return c.Logs, nil
}

func (c *ChainReader) Subscribe(ctx context.Context, filter ethereum.FilterQuery, out chan<- gethtypes.Log) (ethereum.Subscription, error) {
	if c.SubChan == nil {
		c.SubChan = make(chan gethtypes.Log)
	}
	if c.SubErrChan == nil {
		c.SubErrChan = make(chan error, 1)
	}
	go func() {
		for l := range c.SubChan {
			out <- l
		}
	}()
	return &fakeSubscription{errCh: c.SubErrChan}, nil
}

type fakeSubscription struct {
	errCh chan error
}

func (s *fakeSubscription) Unsubscribe() {}
func (s *fakeSubscription) Err() <-chan error { return s.errCh }

// ReceiptWaiter is a scriptable fake of a receipt-waiting dependency
// (vat.ReceiptWaiter, txlistener's WaitForTransaction surface).
type ReceiptWaiter struct {
	Receipts map[common.Hash]*types.TxReceipt
	Err      error
}

func (w *ReceiptWaiter) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	if w.Err != nil {
		return nil, w.Err
	}
	if r, ok := w.Receipts[hash]; ok {
		return r, nil
	}
	return &types.TxReceipt{TxHash: hash, Status: 1}, nil
}
