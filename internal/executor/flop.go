package executor

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

// FlopExecutor dispatches flopper.dent() bids. Like the Flap executor, it
// acts only when the opportunity is marked Profitable.
type FlopExecutor struct {
	flopper  contractclient.ContractClient
	vat      VatBalanceReader
	gate     *txgate.Gate
	signer   common.Address
	pk       *ecdsa.PrivateKey
	gasLimit uint64
	tl       ReceiptWaiter
	stop     *EmergencyStop
	log      *zap.SugaredLogger
}

// NewFlopExecutor builds a FlopExecutor.
func NewFlopExecutor(flopper contractclient.ContractClient, vat VatBalanceReader, gate *txgate.Gate, signer common.Address, pk *ecdsa.PrivateKey, gasLimit uint64, tl ReceiptWaiter, stop *EmergencyStop, log *zap.SugaredLogger) *FlopExecutor {
	return &FlopExecutor{flopper: flopper, vat: vat, gate: gate, signer: signer, pk: pk, gasLimit: gasLimit, tl: tl, stop: stop, log: log}
}

// Dispatch refuses unless the keeper's Vat balance covers the auction's
// fixed bid amount.
func (e *FlopExecutor) Dispatch(opp monitor.EnglishBidOpportunity) (BidResult, error) {
	id := opp.Auction.Key.ID
	if e.stop != nil && e.stop.Stopped() {
		return BidResult{ID: id, Skipped: true, Reason: "emergency stop armed"}, nil
	}
	if !opp.Profitable {
		return BidResult{ID: id, Skipped: true, Reason: "not marked profitable"}, nil
	}

	balance, err := e.vat.VatBalance()
	if err != nil {
		return BidResult{}, err
	}
	if balance.Cmp(opp.Auction.Bid) < 0 {
		if e.log != nil {
			e.log.Warnw("flop dent refused: insufficient vat balance", "id", id, "bid", opp.Auction.Bid.String(), "balance", balance.String())
		}
		return BidResult{}, kerr.New(kerr.InsufficientFunds, "vat balance below auction bid")
	}

	maxLot := monitor.NextFlopLot(opp.Auction, opp.Beg)

	var hash common.Hash
	err = e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = e.flopper.Send(types.Standard, e.gasLimit, &e.signer, e.pk, "dent", id, maxLot, opp.Auction.Bid)
		return sendErr
	})
	if err != nil {
		return BidResult{}, kerr.Wrap(kerr.ChainRpc, "send dent", err)
	}

	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return BidResult{}, kerr.Wrap(kerr.TxUnknown, "wait for dent receipt", err)
	}
	if !receipt.Succeeded() {
		return BidResult{}, kerr.New(kerr.TxReverted, "dent reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}

	if e.log != nil {
		e.log.Infow("flop bid dispatched", "id", id, "lot", maxLot.String(), "tx", hash.Hex())
	}
	return BidResult{ID: id, TxHash: hash, Amount: maxLot}, nil
}
