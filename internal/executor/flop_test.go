package executor

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusd-keeper/keeper/internal/chain/chainfakes"
	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/types"
)

func TestFlopDispatchRefusesWhenBalanceBelowBid(t *testing.T) {
	pk := testPrivateKey(t)
	bid := new(big.Int).Mul(big.NewInt(500), fixed.RAD)
	balance := new(big.Int).Mul(big.NewInt(400), fixed.RAD)

	flopper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			t.Fatal("dent should not be sent when the vat balance is below the auction bid")
			return common.Hash{}, nil
		},
	}
	exec := NewFlopExecutor(flopper, fakeVatBalance{balance: balance}, txgate.New(time.Millisecond), common.Address{}, pk, 300000, nil, &EmergencyStop{}, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}, Bid: bid, Lot: fixed.WAD},
		Beg:        new(big.Int).Div(new(big.Int).Mul(big.NewInt(95), fixed.RAY), big.NewInt(100)),
		Profitable: true,
	}

	_, err := exec.Dispatch(opp)
	require.Error(t, err)
	kind, ok := kerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerr.InsufficientFunds, kind)
}

func TestFlopDispatchSendsDentWhenAffordable(t *testing.T) {
	pk := testPrivateKey(t)
	bid := new(big.Int).Mul(big.NewInt(500), fixed.RAD)
	balance := new(big.Int).Mul(big.NewInt(600), fixed.RAD)
	wantHash := common.HexToHash("0xdd")

	flopper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "dent", method)
			return wantHash, nil
		},
	}
	tl := &chainfakes.ReceiptWaiter{Receipts: map[common.Hash]*types.TxReceipt{wantHash: {TxHash: wantHash, Status: 1}}}
	exec := NewFlopExecutor(flopper, fakeVatBalance{balance: balance}, txgate.New(time.Millisecond), common.Address{}, pk, 300000, tl, &EmergencyStop{}, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}, Bid: bid, Lot: fixed.WAD},
		Beg:        new(big.Int).Div(new(big.Int).Mul(big.NewInt(95), fixed.RAY), big.NewInt(100)),
		Profitable: true,
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.Equal(t, wantHash, result.TxHash)
}
