package vat

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusd-keeper/keeper/internal/chain/chainfakes"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/types"
)

func wad(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), fixed.WAD) }
func rad(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), fixed.RAD) }

func newManager(t *testing.T, vatBalanceRad *big.Int, walletBalanceWad *big.Int) (m *Manager, join, token *chainfakes.ContractClient) {
	t.Helper()
	signer := common.HexToAddress("0x0000000000000000000000000000000000000a")

	vatClient := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(vatBalanceRad)}, nil
		},
	}
	joinClient := &chainfakes.ContractClient{
		Address: common.HexToAddress("0x0000000000000000000000000000000000000b"),
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			return common.Hash{0x1}, nil
		},
	}
	tokenClient := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(walletBalanceWad)}, nil
		},
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			return common.Hash{0x2}, nil
		},
	}

	waiter := &chainfakes.ReceiptWaiter{}
	m = New(vatClient, joinClient, tokenClient, signer, nil, "dai", 200000, waiter, nil)
	return m, joinClient, tokenClient
}

func TestVatBalanceReadsConfiguredMethod(t *testing.T) {
	m, _, _ := newManager(t, rad(500), wad(100))
	bal, err := m.VatBalance()
	require.NoError(t, err)
	assert.Equal(t, rad(500), bal)
}

func TestEnsureVatBalanceNoopWhenSufficient(t *testing.T) {
	m, join, token := newManager(t, rad(500), wad(100))
	join.SendFunc = failIfCalled(t)
	token.SendFunc = failIfCalled(t)

	err := m.EnsureVatBalance(wad(400))
	assert.NoError(t, err)
}

func TestEnsureVatBalanceInsufficientFundsWithoutSending(t *testing.T) {
	m, join, token := newManager(t, rad(10), wad(5))
	join.SendFunc = failIfCalled(t)
	token.SendFunc = failIfCalled(t)

	err := m.EnsureVatBalance(wad(100))
	kind, ok := kerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerr.InsufficientFunds, kind)
}

func TestEnsureVatBalanceMovesShortfallFromWallet(t *testing.T) {
	m, join, token := newManager(t, rad(100), wad(1000))
	_ = join
	_ = token

	err := m.EnsureVatBalance(wad(500))
	assert.NoError(t, err)
}

func failIfCalled(t *testing.T) func(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	t.Helper()
	return func(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
		t.Fatalf("unexpected send: %s", method)
		return common.Hash{}, nil
	}
}
