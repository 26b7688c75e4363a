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
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/types"
)

type fakeWalletBalance struct {
	balance *big.Int
	err     error
}

func (f fakeWalletBalance) WalletBalance() (*big.Int, error) { return f.balance, f.err }

func TestFlapDispatchSkipsWhenNotProfitable(t *testing.T) {
	pk := testPrivateKey(t)
	flapper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			t.Fatal("tend should not be sent when the opportunity is not profitable")
			return common.Hash{}, nil
		},
	}
	exec := NewFlapExecutor(flapper, &chainfakes.ContractClient{}, fakeWalletBalance{balance: fixed.WAD}, big.NewInt(0), txgate.New(time.Millisecond), common.Address{}, pk, 300000, nil, &EmergencyStop{}, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}, Bid: big.NewInt(0), Lot: fixed.RAD},
		Beg:        fixed.RAY,
		Profitable: false,
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestFlapDispatchRefusesWhenSklcBalanceBelowMinBid(t *testing.T) {
	pk := testPrivateKey(t)
	minInitial := new(big.Int).Mul(big.NewInt(100), fixed.WAD)
	balance := new(big.Int).Mul(big.NewInt(50), fixed.WAD)

	flapper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			t.Fatal("tend should not be sent when the sklc balance is below the minimum bid")
			return common.Hash{}, nil
		},
	}
	exec := NewFlapExecutor(flapper, &chainfakes.ContractClient{}, fakeWalletBalance{balance: balance}, minInitial, txgate.New(time.Millisecond), common.Address{}, pk, 300000, nil, &EmergencyStop{}, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}, Bid: big.NewInt(0), Lot: fixed.RAD},
		Beg:        fixed.RAY,
		Profitable: true,
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestFlapDispatchSendsTendWhenAffordable(t *testing.T) {
	pk := testPrivateKey(t)
	minInitial := new(big.Int).Mul(big.NewInt(100), fixed.WAD)
	balance := new(big.Int).Mul(big.NewInt(200), fixed.WAD)
	wantHash := common.HexToHash("0xee")
	approveHash := common.HexToHash("0xef")

	flapper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "tend", method)
			return wantHash, nil
		},
	}
	sklc := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "approve", method)
			return approveHash, nil
		},
	}
	tl := &chainfakes.ReceiptWaiter{Receipts: map[common.Hash]*types.TxReceipt{
		wantHash:    {TxHash: wantHash, Status: 1},
		approveHash: {TxHash: approveHash, Status: 1},
	}}
	exec := NewFlapExecutor(flapper, sklc, fakeWalletBalance{balance: balance}, minInitial, txgate.New(time.Millisecond), common.Address{}, pk, 300000, tl, &EmergencyStop{}, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}, Bid: big.NewInt(0), Lot: fixed.RAD},
		Beg:        fixed.RAY,
		Profitable: true,
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.Equal(t, wantHash, result.TxHash)
}

func TestFlapDispatchRefusesWhenStopArmed(t *testing.T) {
	pk := testPrivateKey(t)
	stop := &EmergencyStop{}
	stop.Set(true)
	exec := NewFlapExecutor(&chainfakes.ContractClient{}, &chainfakes.ContractClient{}, fakeWalletBalance{balance: fixed.WAD}, big.NewInt(0), txgate.New(time.Millisecond), common.Address{}, pk, 300000, nil, stop, nil)

	opp := monitor.EnglishBidOpportunity{
		Auction:    domain.EnglishAuction{Key: domain.EnglishAuctionKey{ID: big.NewInt(1)}},
		Profitable: true,
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "emergency stop armed", result.Reason)
}
