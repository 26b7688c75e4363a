package executor

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

// BalanceReader reads a plain ERC20 balance at the keeper's address, WAD.
type BalanceReader interface {
	WalletBalance() (*big.Int, error)
}

// BidResult records the outcome of one tend/dent dispatch.
type BidResult struct {
	ID      *big.Int
	TxHash  common.Hash
	Amount  *big.Int
	Skipped bool
	Reason  string
}

// FlapExecutor dispatches flapper.tend() bids. It never speculates on
// price: it only acts when the caller-supplied opportunity is Profitable.
type FlapExecutor struct {
	flapper    contractclient.ContractClient
	sklc       contractclient.ContractClient // ERC20 approve target
	balances   BalanceReader
	minInitial *big.Int
	gate       *txgate.Gate
	signer     common.Address
	pk         *ecdsa.PrivateKey
	gasLimit   uint64
	tl         ReceiptWaiter
	stop       *EmergencyStop
	log        *zap.SugaredLogger
}

// NewFlapExecutor builds a FlapExecutor.
func NewFlapExecutor(flapper, sklc contractclient.ContractClient, balances BalanceReader, minInitial *big.Int, gate *txgate.Gate, signer common.Address, pk *ecdsa.PrivateKey, gasLimit uint64, tl ReceiptWaiter, stop *EmergencyStop, log *zap.SugaredLogger) *FlapExecutor {
	return &FlapExecutor{flapper: flapper, sklc: sklc, balances: balances, minInitial: minInitial, gate: gate, signer: signer, pk: pk, gasLimit: gasLimit, tl: tl, stop: stop, log: log}
}

// Dispatch refuses unless opp.Profitable is set, the sKLC balance covers
// the required bid, and the emergency stop is clear. It approves the
// Flapper for exactly the bid amount before calling tend, per bid, to bound
// allowance exposure.
func (e *FlapExecutor) Dispatch(opp monitor.EnglishBidOpportunity) (BidResult, error) {
	id := opp.Auction.Key.ID
	if e.stop != nil && e.stop.Stopped() {
		return BidResult{ID: id, Skipped: true, Reason: "emergency stop armed"}, nil
	}
	if !opp.Profitable {
		return BidResult{ID: id, Skipped: true, Reason: "not marked profitable"}, nil
	}

	minBid := monitor.NextFlapBid(opp.Auction, opp.Beg, e.minInitial)
	balance, err := e.balances.WalletBalance()
	if err != nil {
		return BidResult{}, err
	}
	if balance.Cmp(minBid) < 0 {
		return BidResult{ID: id, Skipped: true, Reason: "insufficient sklc balance"}, nil
	}

	if err := e.approve(minBid); err != nil {
		return BidResult{}, err
	}

	var hash common.Hash
	err = e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = e.flapper.Send(types.Standard, e.gasLimit, &e.signer, e.pk, "tend", id, opp.Auction.Lot, minBid)
		return sendErr
	})
	if err != nil {
		return BidResult{}, kerr.Wrap(kerr.ChainRpc, "send tend", err)
	}

	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return BidResult{}, kerr.Wrap(kerr.TxUnknown, "wait for tend receipt", err)
	}
	if !receipt.Succeeded() {
		return BidResult{}, kerr.New(kerr.TxReverted, "tend reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}

	if e.log != nil {
		e.log.Infow("flap bid dispatched", "id", id, "bid", minBid.String(), "tx", hash.Hex())
	}
	return BidResult{ID: id, TxHash: hash, Amount: minBid}, nil
}

func (e *FlapExecutor) approve(amount *big.Int) error {
	var hash common.Hash
	err := e.gate.Do(func() error {
		var sendErr error
		hash, sendErr = e.sklc.Send(types.Standard, e.gasLimit, &e.signer, e.pk, "approve", e.flapper.ContractAddress(), amount)
		return sendErr
	})
	if err != nil {
		return kerr.Wrap(kerr.ChainRpc, "send approve", err)
	}
	receipt, err := e.tl.WaitForTransaction(hash)
	if err != nil {
		return kerr.Wrap(kerr.TxUnknown, "wait for approve receipt", err)
	}
	if !receipt.Succeeded() {
		return kerr.New(kerr.TxReverted, "approve reverted").WithTx(hash.Hex(), receipt.RevertReason)
	}
	return nil
}
