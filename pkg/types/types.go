// Package types holds the plain, chain-facing value types shared by
// pkg/contractclient and pkg/txlistener. They carry no behavior beyond
// simple accessors so they stay trivially comparable and JSON-serializable.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxType mirrors the EVM transaction type byte. The keeper only ever sends
// legacy (type 0) transactions: the target chain has stable gas and dynamic
// fee markets are explicitly out of scope.
type TxType uint8

const (
	// Standard is a legacy (type 0) transaction with an explicit gas price.
	Standard TxType = 0
)

// TxReceipt is a decoded, string-encoded mirror of go-ethereum's
// *gethtypes.Receipt, kept as strings for the big.Int fields so it can be
// stored verbatim (in logs, in the audit DB) without custom marshaling.
type TxReceipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	Status            uint64
	GasUsed           string
	EffectiveGasPrice string
	RevertReason      string
	Logs              []Log
}

// Log is a single decoded event log entry.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Succeeded reports whether the on-chain receipt status is 1.
func (r *TxReceipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// GasCost returns GasUsed * EffectiveGasPrice in wei, or nil if either is
// unparsable.
func (r *TxReceipt) GasCost() *big.Int {
	if r == nil {
		return nil
	}
	used, ok := new(big.Int).SetString(r.GasUsed, 0)
	if !ok {
		return nil
	}
	price, ok := new(big.Int).SetString(r.EffectiveGasPrice, 0)
	if !ok {
		return nil
	}
	return new(big.Int).Mul(used, price)
}

// DecodedTransaction is the output of ContractClient.DecodeTransaction: the
// matched ABI method name and its arguments keyed by parameter name.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Parameter  map[string]interface{} `json:"parameter"`
}

// DecodedEvent is a single decoded log entry from ParseReceipt.
type DecodedEvent struct {
	EventName string                 `json:"eventName"`
	Parameter map[string]interface{} `json:"parameter"`
}

// Tx carries everything the chain façade needs to sign and send a
// transaction. GasLimit of 0 means "estimate automatically".
type Tx struct {
	Type     TxType
	To       common.Address
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
	Value    *big.Int
}
