// Package vat manages the keeper's stablecoin balance split between its
// external ERC-20 wallet and its internal Vat ledger balance.
package vat

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

// ReceiptWaiter is the subset of *txlistener.TxListener the manager needs;
// declared locally so tests can substitute a fake.
type ReceiptWaiter interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
}

// Manager moves the keeper's stablecoin between its wallet and Vat balance.
type Manager struct {
	vat contractclient.ContractClient // Vat: exposes the configured balance view
	join contractclient.ContractClient // *Join adapter: join/exit
	token contractclient.ContractClient // stablecoin ERC-20: balanceOf/approve

	signer common.Address
	pk *ecdsa.PrivateKey

	// balanceMethod is either "dai" or "kusd" depending on which spelling
	// the deployed Vat ABI exposes.
	balanceMethod string
	gasLimit uint64

	tl ReceiptWaiter
	log *zap.SugaredLogger
}

// New builds a Manager. balanceMethod must name the Vat's stablecoin-balance
// view ("dai" or "kusd") matching the deployed ABI.
func New(vat, join, token contractclient.ContractClient, signer common.Address, pk *ecdsa.PrivateKey, balanceMethod string, gasLimit uint64, tl ReceiptWaiter, log *zap.SugaredLogger) *Manager {
	return &Manager{
		vat: vat,
		join: join,
		token: token,
		signer: signer,
		pk: pk,
		balanceMethod: balanceMethod,
		gasLimit: gasLimit,
		tl: tl,
		log: log,
	}
}

// VatBalance returns the keeper's internal Vat balance, RAD-scaled.
func (m *Manager) VatBalance() (*big.Int, error) {
	out, err := m.vat.Call(&m.signer, m.balanceMethod, m.signer)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read vat balance", err)
	}
	return out[0].(*big.Int), nil
}

// WalletBalance returns the keeper's external ERC-20 stablecoin balance,
// WAD-scaled.
func (m *Manager) WalletBalance() (*big.Int, error) {
	out, err := m.token.Call(&m.signer, "balanceOf", m.signer)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read wallet balance", err)
	}
	return out[0].(*big.Int), nil
}

// MoveToVat moves amountWad from the wallet into the Vat via a two-step
// approve-then-join; both transactions must confirm before returning
// success. On partial failure the error names which step failed so the
// operator can reconcile.
func (m *Manager) MoveToVat(amountWad *big.Int) (approveTx, joinTx common.Hash, err error) {
	approveTx, err = m.token.Send(types.Standard, m.gasLimit, &m.signer, m.pk, "approve", m.join.ContractAddress(), amountWad)
	if err != nil {
		return common.Hash{}, common.Hash{}, kerr.Wrap(kerr.ChainRpc, "move_to_vat: approve", err)
	}
	approveReceipt, err := m.tl.WaitForTransaction(approveTx)
	if err != nil {
		return approveTx, common.Hash{}, kerr.Wrap(kerr.TxUnknown, "move_to_vat: approve receipt", err).WithTx(approveTx.Hex(), "")
	}
	if !approveReceipt.Succeeded() {
		return approveTx, common.Hash{}, kerr.New(kerr.TxReverted, "move_to_vat: approve reverted").WithTx(approveTx.Hex(), approveReceipt.RevertReason)
	}

	joinTx, err = m.join.Send(types.Standard, m.gasLimit, &m.signer, m.pk, "join", m.signer, amountWad)
	if err != nil {
		return approveTx, common.Hash{}, kerr.Wrap(kerr.ChainRpc, "move_to_vat: join", err)
	}
	receipt, err := m.tl.WaitForTransaction(joinTx)
	if err != nil {
		return approveTx, joinTx, kerr.Wrap(kerr.TxUnknown, "move_to_vat: join receipt", err).WithTx(joinTx.Hex(), "")
	}
	if !receipt.Succeeded() {
		return approveTx, joinTx, kerr.New(kerr.TxReverted, "move_to_vat: join reverted").WithTx(joinTx.Hex(), receipt.RevertReason)
	}
	return approveTx, joinTx, nil
}

// MoveToWallet moves amountWad from the Vat to the wallet via a single exit
// call.
func (m *Manager) MoveToWallet(amountWad *big.Int) (common.Hash, error) {
	exitTx, err := m.join.Send(types.Standard, m.gasLimit, &m.signer, m.pk, "exit", m.signer, amountWad)
	if err != nil {
		return common.Hash{}, kerr.Wrap(kerr.ChainRpc, "move_to_wallet: exit", err)
	}
	receipt, err := m.tl.WaitForTransaction(exitTx)
	if err != nil {
		return exitTx, kerr.Wrap(kerr.TxUnknown, "move_to_wallet: exit receipt", err).WithTx(exitTx.Hex(), "")
	}
	if !receipt.Succeeded() {
		return exitTx, kerr.New(kerr.TxReverted, "move_to_wallet: exit reverted").WithTx(exitTx.Hex(), receipt.RevertReason)
	}
	return exitTx, nil
}

// EnsureVatBalance tops up the Vat balance to at least minWad by moving the
// shortfall from the wallet. If the wallet cannot cover the shortfall, it
// returns a kerr.InsufficientFunds error without sending any transaction.
func (m *Manager) EnsureVatBalance(minWad *big.Int) error {
	currentRad, err := m.VatBalance()
	if err != nil {
		return err
	}
	currentWad := new(big.Int).Div(currentRad, fixed.RAY)
	if currentWad.Cmp(minWad) >= 0 {
		return nil
	}

	shortfall := new(big.Int).Sub(minWad, currentWad)
	walletWad, err := m.WalletBalance()
	if err != nil {
		return err
	}
	if walletWad.Cmp(shortfall) < 0 {
		return kerr.New(kerr.InsufficientFunds, "ensure_vat_balance: wallet balance below shortfall")
	}

	_, _, err = m.MoveToVat(shortfall)
	return err
}
