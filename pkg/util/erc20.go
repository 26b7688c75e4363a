package util

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kusd-keeper/keeper/pkg/contractclient"
)

// ERC20Balance reads a plain balanceOf at one address against one token
// contract. It satisfies the WalletBalance() (*big.Int, error) shape every
// executor/orchestrator balance dependency expects, for tokens that carry
// no extra bookkeeping beyond balanceOf (sKLC, the arbitrage gem).
type ERC20Balance struct {
	Token contractclient.ContractClient
	Owner common.Address
}

// WalletBalance calls balanceOf(Owner) against Token.
func (b ERC20Balance) WalletBalance() (*big.Int, error) {
	out, err := b.Token.Call(&b.Owner, "balanceOf", b.Owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
