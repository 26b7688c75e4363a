package executor

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

// PegExecutionResult records a completed round-trip.
type PegExecutionResult struct {
	Direction domain.PegArbDirection
	FirstLegTx common.Hash
	SecondLegTx common.Hash
	GemDelta *big.Int // new wallet gem balance minus old, may be negative on a short-fall
}

// PegExecutor runs the two legs of a peg-arbitrage round-trip planned by
// monitor.PegMonitor. Each leg's exact input amount is approved just before
// it is sent, and the keeper's balance is re-read between legs so only
// what was actually received feeds the second leg.
type PegExecutor struct {
	gem contractclient.ContractClient // ERC20
	kusd contractclient.ContractClient // ERC20
	psmC contractclient.ContractClient
	router contractclient.ContractClient
	gate *txgate.Gate
	signer common.Address
	pk *ecdsa.PrivateKey
	gasLimit uint64
	tl ReceiptWaiter
	stop *EmergencyStop
	pegMon *monitor.PegMonitor
	log *zap.SugaredLogger
}

// NewPegExecutor builds a PegExecutor. pegMon is notified of a successful
// round-trip so its cooldown clock starts.
func NewPegExecutor(gem, kusd, psmC, router contractclient.ContractClient, gate *txgate.Gate, signer common.Address, pk *ecdsa.PrivateKey, gasLimit uint64, tl ReceiptWaiter, stop *EmergencyStop, pegMon *monitor.PegMonitor, log *zap.SugaredLogger) *PegExecutor {
	return &PegExecutor{gem: gem, kusd: kusd, psmC: psmC, router: router, gate: gate, signer: signer, pk: pk, gasLimit: gasLimit, tl: tl, stop: stop, pegMon: pegMon, log: log}
}

func (e *PegExecutor) send(c contractclient.ContractClient, method string, args ...interface{}) (common.Hash, error) {
	var hash common.Hash
	err := e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = c.Send(types.Standard, e.gasLimit, &e.signer, e.pk, method, args...)
		return sendErr
	})
	if err != nil {
		return common.Hash{}, kerr.Wrap(kerr.ChainRpc, "send "+method, err)
	}
	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return common.Hash{}, kerr.Wrap(kerr.TxUnknown, "wait for "+method+" receipt", err)
	}
	if !receipt.Succeeded() {
		return common.Hash{}, kerr.New(kerr.TxReverted, method+" reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}
	return hash, nil
}

func (e *PegExecutor) approve(token contractclient.ContractClient, spender common.Address, amount *big.Int) error {
	_, err := e.send(token, "approve", spender, amount)
	return err
}

func (e *PegExecutor) gemBalance() (*big.Int, error) {
	out, err := e.gem.Call(nil, "balanceOf", e.signer)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read gem balance", err)
	}
	return out[0].(*big.Int), nil
}

func (e *PegExecutor) kusdBalance() (*big.Int, error) {
	out, err := e.kusd.Call(nil, "balanceOf", e.signer)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read kusd balance", err)
	}
	return out[0].(*big.Int), nil
}

// Execute dispatches the two legs of plan in order: re-reading the
// keeper's balance between legs so only the amount actually received
// feeds the second leg, and approving each leg's exact amount immediately
// before sending it.
func (e *PegExecutor) Execute(plan *domain.PegArbPlan) (PegExecutionResult, error) {
	if e.stop != nil && e.stop.Stopped() {
		return PegExecutionResult{}, kerr.New(kerr.Config, "emergency stop armed")
	}

	oldGem, err := e.gemBalance()
	if err != nil {
		return PegExecutionResult{}, err
	}

	var firstTx, secondTx common.Hash
	switch plan.Direction {
	case domain.HighPriceArb:
		kusdBefore, err := e.kusdBalance()
		if err != nil {
			return PegExecutionResult{}, err
		}
		if err := e.approve(e.gem, e.psmC.ContractAddress(), plan.TradeAmountGem); err != nil {
			return PegExecutionResult{}, err
		}
		if firstTx, err = e.send(e.psmC, "sellGem", e.signer, plan.TradeAmountGem); err != nil {
			return PegExecutionResult{}, err
		}

		kusdAfter, err := e.kusdBalance()
		if err != nil {
			return PegExecutionResult{}, err
		}
		kusdReceived := new(big.Int).Sub(kusdAfter, kusdBefore)
		if err := e.approve(e.kusd, e.router.ContractAddress(), kusdReceived); err != nil {
			return PegExecutionResult{}, err
		}
		deadline := big.NewInt(time.Now().Unix() + 300)
		path := []common.Address{e.kusd.ContractAddress(), e.gem.ContractAddress()}
		if secondTx, err = e.send(e.router, "swapExactTokensForTokens", kusdReceived, plan.MinOut, path, e.signer, deadline); err != nil {
			return PegExecutionResult{}, err
		}

	case domain.LowPriceArb:
		kusdBefore, err := e.kusdBalance()
		if err != nil {
			return PegExecutionResult{}, err
		}
		if err := e.approve(e.gem, e.router.ContractAddress(), plan.TradeAmountGem); err != nil {
			return PegExecutionResult{}, err
		}
		deadline := big.NewInt(time.Now().Unix() + 300)
		path := []common.Address{e.gem.ContractAddress(), e.kusd.ContractAddress()}
		if firstTx, err = e.send(e.router, "swapExactTokensForTokens", plan.TradeAmountGem, plan.MinOut, path, e.signer, deadline); err != nil {
			return PegExecutionResult{}, err
		}

		kusdAfter, err := e.kusdBalance()
		if err != nil {
			return PegExecutionResult{}, err
		}
		kusdReceived := new(big.Int).Sub(kusdAfter, kusdBefore)
		if err := e.approve(e.kusd, e.psmC.ContractAddress(), kusdReceived); err != nil {
			return PegExecutionResult{}, err
		}
		if secondTx, err = e.send(e.psmC, "buyGem", e.signer, plan.ExpectedOut); err != nil {
			return PegExecutionResult{}, err
		}
	}

	newGem, err := e.gemBalance()
	if err != nil {
		return PegExecutionResult{}, err
	}

	if e.pegMon != nil {
		e.pegMon.MarkExecuted(time.Now())
	}
	delta := new(big.Int).Sub(newGem, oldGem)
	if e.log != nil {
		e.log.Infow("peg arb executed", "direction", plan.Direction, "gem_delta", delta.String())
	}
	return PegExecutionResult{Direction: plan.Direction, FirstLegTx: firstTx, SecondLegTx: secondTx, GemDelta: delta}, nil
}
