package monitor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusd-keeper/keeper/internal/chain/chainfakes"
	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
)

func TestNewEnglishMonitorReadsBegFromContract(t *testing.T) {
	wantBeg := new(big.Int).Mul(big.NewInt(103), new(big.Int).Div(fixed.RAY, big.NewInt(100)))
	flapper := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			require.Equal(t, "beg", method)
			return []interface{}{wantBeg}, nil
		},
	}
	m := NewEnglishMonitor(nil, flapper, abi.ABI{}, DefaultFlapBeg, nil)
	assert.Equal(t, wantBeg, m.Beg())
}

func TestNewEnglishMonitorFallsBackToDefaultBegOnReadError(t *testing.T) {
	flapper := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			return nil, assert.AnError
		},
	}
	m := NewEnglishMonitor(nil, flapper, abi.ABI{}, DefaultFlopBeg, nil)
	assert.Equal(t, DefaultFlopBeg, m.Beg())
}

func TestEnglishScanDropsExpiredAuctions(t *testing.T) {
	activeID := big.NewInt(1)
	expiredID := big.NewInt(2)

	flopper := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			require.Equal(t, "bids", method)
			id := args[0].(*big.Int)
			switch id.String() {
			case activeID.String():
				return []interface{}{
					new(big.Int).Mul(big.NewInt(400), fixed.RAD),
					fixed.WAD,
					common.HexToAddress("0xaa"),
					big.NewInt(2000),
					big.NewInt(5000),
				}, nil
			case expiredID.String():
				return []interface{}{
					new(big.Int).Mul(big.NewInt(400), fixed.RAD),
					fixed.WAD,
					common.HexToAddress("0xbb"),
					big.NewInt(900),
					big.NewInt(1000),
				}, nil
			}
			return nil, assert.AnError
		},
	}

	m := NewEnglishMonitor(nil, flopper, abi.ABI{}, DefaultFlopBeg, nil)
	m.insert(domain.EnglishAuctionKey{ID: activeID})
	m.insert(domain.EnglishAuctionKey{ID: expiredID})

	opps, err := m.Scan(1500)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, activeID, opps[0].Auction.Key.ID)
	assert.Len(t, m.trackedKeys(), 1)
}
