package executor

import (
	"crypto/ecdsa"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

// VatBalanceReader is the subset of vat.Manager the take executor needs.
type VatBalanceReader interface {
	VatBalance() (*big.Int, error) // RAD
}

// TakeResult records the outcome of one clipper.take dispatch.
type TakeResult struct {
	Ilk         string
	ID          *big.Int
	TxHash      common.Hash
	Amount      *big.Int // WAD, possibly reduced from the opportunity's lot
	ProfitRad   *big.Int
	Skipped     bool
	Reason      string
}

// TakeExecutor dispatches clipper.take() calls against profitable
// collateral auctions, reducing the bid amount to what the keeper's Vat
// balance can afford.
type TakeExecutor struct {
	clippers map[string]contractclient.ContractClient
	vat      VatBalanceReader
	gate     *txgate.Gate
	signer   common.Address
	pk       *ecdsa.PrivateKey
	gasLimit uint64
	tl       ReceiptWaiter
	stop     *EmergencyStop
	log      *zap.SugaredLogger
}

// NewTakeExecutor builds a TakeExecutor. clippers maps ilk name to its
// Clipper contract client.
func NewTakeExecutor(clippers map[string]contractclient.ContractClient, vat VatBalanceReader, gate *txgate.Gate, signer common.Address, pk *ecdsa.PrivateKey, gasLimit uint64, tl ReceiptWaiter, stop *EmergencyStop, log *zap.SugaredLogger) *TakeExecutor {
	return &TakeExecutor{clippers: clippers, vat: vat, gate: gate, signer: signer, pk: pk, gasLimit: gasLimit, tl: tl, stop: stop, log: log}
}

// Dispatch re-reads the keeper's Vat balance and reduces the take amount to
// what it can afford before sending. lot and current_price are both taken
// from the opportunity as last scanned; the chain itself enforces that the
// realized price never exceeds max_price.
//
// Unit note: lot is WAD, current_price is RAY, so lot*current_price is
// RAD-scale and directly comparable to the Vat's RAD balance; dividing a
// RAD balance by a RAY price yields the affordable WAD amount.
func (e *TakeExecutor) Dispatch(opp monitor.BiddingOpportunity) (TakeResult, error) {
	key := opp.Auction.Key
	if e.stop != nil && e.stop.Stopped() {
		return TakeResult{Ilk: key.Ilk, ID: key.ID, Skipped: true, Reason: "emergency stop armed"}, nil
	}
	clipper, ok := e.clippers[key.Ilk]
	if !ok {
		return TakeResult{}, kerr.New(kerr.Config, "no clipper configured for ilk "+key.Ilk)
	}

	balanceRad, err := e.vat.VatBalance()
	if err != nil {
		return TakeResult{}, err
	}

	amount := new(big.Int).Set(opp.Auction.Lot)
	needRad := new(big.Int).Mul(amount, opp.CurrentPrice)
	if balanceRad.Cmp(needRad) < 0 {
		if balanceRad.Sign() <= 0 {
			return TakeResult{Ilk: key.Ilk, ID: key.ID, Skipped: true, Reason: "insufficient vat balance"}, nil
		}
		amount = new(big.Int).Quo(balanceRad, opp.CurrentPrice)
		if amount.Sign() <= 0 {
			return TakeResult{Ilk: key.Ilk, ID: key.ID, Skipped: true, Reason: "insufficient vat balance"}, nil
		}
	}

	var hash common.Hash
	err = e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = clipper.Send(types.Standard, e.gasLimit, &e.signer, e.pk, "take", key.ID, amount, opp.CurrentPrice, e.signer, []byte{})
		return sendErr
	})
	if err != nil {
		return TakeResult{}, kerr.Wrap(kerr.ChainRpc, "send take", err)
	}

	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return TakeResult{}, kerr.Wrap(kerr.TxUnknown, "wait for take receipt", err)
	}
	if !receipt.Succeeded() {
		return TakeResult{}, kerr.New(kerr.TxReverted, "take reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}

	profit := new(big.Int).Mul(amount, opp.MarketPrice)
	profit.Sub(profit, new(big.Int).Mul(amount, opp.CurrentPrice))

	if e.log != nil {
		e.log.Infow("take dispatched", "ilk", key.Ilk, "id", key.ID, "amount", amount.String(), "tx", hash.Hex())
	}
	return TakeResult{Ilk: key.Ilk, ID: key.ID, TxHash: hash, Amount: amount, ProfitRad: profit}, nil
}

// DispatchBatch sorts by descending profit percent and sends sequentially.
func (e *TakeExecutor) DispatchBatch(opps []monitor.BiddingOpportunity) []TakeResult {
	sorted := make([]monitor.BiddingOpportunity, len(opps))
	copy(sorted, opps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProfitPercent.Cmp(sorted[j].ProfitPercent) > 0
	})

	results := make([]TakeResult, 0, len(sorted))
	for _, opp := range sorted {
		result, err := e.Dispatch(opp)
		if err != nil {
			if e.log != nil {
				e.log.Warnw("take dispatch failed", "ilk", opp.Auction.Key.Ilk, "id", opp.Auction.Key.ID, "error", err)
			}
			continue
		}
		results = append(results, result)
	}
	return results
}
