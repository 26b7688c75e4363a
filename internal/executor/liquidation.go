package executor

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
	"github.com/kusd-keeper/keeper/pkg/util"
)

// ReceiptWaiter is the subset of *txlistener.TxListener the executors need
// to confirm a send, declared locally so tests can substitute a fake.
type ReceiptWaiter interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
}

// LiquidationResult records the outcome of one bark dispatch.
type LiquidationResult struct {
	Vault domain.VaultKey
	TxHash common.Hash
	Skipped bool
	Reason string
}

// LiquidationExecutor dispatches dog.bark() calls for unsafe vaults.
type LiquidationExecutor struct {
	dog contractclient.ContractClient
	gate *txgate.Gate
	signer common.Address
	pk *ecdsa.PrivateKey
	gasLimit uint64
	tl ReceiptWaiter
	stop *EmergencyStop
	log *zap.SugaredLogger
}

// NewLiquidationExecutor builds a LiquidationExecutor.
func NewLiquidationExecutor(dog contractclient.ContractClient, gate *txgate.Gate, signer common.Address, pk *ecdsa.PrivateKey, gasLimit uint64, tl ReceiptWaiter, stop *EmergencyStop, log *zap.SugaredLogger) *LiquidationExecutor {
	return &LiquidationExecutor{dog: dog, gate: gate, signer: signer, pk: pk, gasLimit: gasLimit, tl: tl, stop: stop, log: log}
}

func (e *LiquidationExecutor) readGlobalDog() (domain.DogParams, error) {
	holeOut, err := e.dog.Call(nil, "Hole")
	if err != nil {
		return domain.DogParams{}, kerr.Wrap(kerr.ChainRpc, "read dog Hole", err)
	}
	dirtOut, err := e.dog.Call(nil, "Dirt")
	if err != nil {
		return domain.DogParams{}, kerr.Wrap(kerr.ChainRpc, "read dog Dirt", err)
	}
	return domain.DogParams{Hole: holeOut[0].(*big.Int), Dirt: dirtOut[0].(*big.Int)}, nil
}

func (e *LiquidationExecutor) readIlkDog(ilk string) (domain.DogIlkParams, error) {
	tag := util.EncodeIlk(ilk)
	out, err := e.dog.Call(nil, "ilks", tag)
	if err != nil {
		return domain.DogIlkParams{}, kerr.Wrap(kerr.ChainRpc, "read dog ilk "+ilk, err)
	}
	return domain.DogIlkParams{
		Clip: out[0].(common.Address),
		Chop: out[1].(*big.Int),
		Hole: out[2].(*big.Int),
		Dirt: out[3].(*big.Int),
	}, nil
}

// Dispatch re-checks the emergency stop and debt ceilings, then sends
// dog.bark(ilk, urn, keeper) if both clear. It never retries on revert:
// the caller is expected to re-scan next tick.
func (e *LiquidationExecutor) Dispatch(opp monitor.LiquidationOpportunity) (LiquidationResult, error) {
	key := opp.Vault.Key
	if e.stop != nil && e.stop.Stopped() {
		return LiquidationResult{Vault: key, Skipped: true, Reason: "emergency stop armed"}, nil
	}

	global, err := e.readGlobalDog()
	if err != nil {
		return LiquidationResult{}, err
	}
	ilkDog, err := e.readIlkDog(key.Ilk)
	if err != nil {
		return LiquidationResult{}, err
	}
	if !domain.CanLiquidate(global, ilkDog) {
		return LiquidationResult{Vault: key, Skipped: true, Reason: "debt ceiling reached"}, nil
	}

	var hash common.Hash
	err = e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = e.dog.Send(types.Standard, e.gasLimit, &e.signer, e.pk, "bark", util.EncodeIlk(key.Ilk), key.Urn, e.signer)
		return sendErr
	})
	if err != nil {
		return LiquidationResult{}, kerr.Wrap(kerr.ChainRpc, "send bark", err)
	}

	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return LiquidationResult{}, kerr.Wrap(kerr.TxUnknown, "wait for bark receipt", err)
	}
	if !receipt.Succeeded() {
		if e.log != nil {
			e.log.Warnw("bark reverted", "ilk", key.Ilk, "urn", key.Urn.Hex(), "tx", hash.Hex(), "revert_reason", receipt.RevertReason)
		}
		return LiquidationResult{}, kerr.New(kerr.TxReverted, "bark reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}

	if e.log != nil {
		e.log.Infow("liquidation dispatched", "ilk", key.Ilk, "urn", key.Urn.Hex(), "tx", hash.Hex())
	}
	return LiquidationResult{Vault: key, TxHash: hash}, nil
}

// DispatchBatch runs Dispatch sequentially for every opportunity, honoring
// the gate's gap between sends. A failed or skipped
// dispatch does not abort the batch.
func (e *LiquidationExecutor) DispatchBatch(opps []monitor.LiquidationOpportunity) []LiquidationResult {
	results := make([]LiquidationResult, 0, len(opps))
	for _, opp := range opps {
		result, err := e.Dispatch(opp)
		if err != nil {
			if e.log != nil {
				e.log.Warnw("liquidation dispatch failed", "ilk", opp.Vault.Key.Ilk, "urn", opp.Vault.Key.Urn.Hex(), "error", err)
			}
			continue
		}
		results = append(results, result)
	}
	return results
}
