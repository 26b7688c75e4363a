// Package contractclient wraps a single deployed contract (address + ABI)
// behind a small Call/Send surface, so the rest of the keeper never packs
// calldata or signs transactions itself.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kusd-keeper/keeper/pkg/types"
)

// CallTimeout bounds a single eth_call; fixes this at 15s.
const CallTimeout = 15 * time.Second

// ContractClient is the Call/Send surface every monitor and executor uses
// to talk to exactly one deployed contract.
type ContractClient interface {
	ContractAddress() common.Address
	Abi() *abi.ABI
	// Call performs a read-only eth_call against this contract and decodes
	// the outputs positionally. from may be nil (msg.sender is unset).
	Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	// Send builds, signs and submits a transaction invoking method on this
	// contract, and returns the tx hash. gasLimit of 0 estimates
	// automatically. It does not wait for the receipt.
	Send(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	// TransactionData fetches the calldata of a mined transaction by hash.
	TransactionData(hash common.Hash) ([]byte, error)
	// DecodeTransaction decodes raw calldata against this contract's ABI.
	DecodeTransaction(data []byte) (*types.DecodedTransaction, error)
	// ParseReceipt decodes every log in a receipt whose address matches this
	// contract and whose topic0 matches a known event, returning a JSON
	// array of DecodedEvent.
	ParseReceipt(receipt *types.TxReceipt) (string, error)
}

type contractClient struct {
	client *ethclient.Client
	address common.Address
	abi abi.ABI
	chainID *big.Int
	gas GasPricer
}

// GasPricer supplies the legacy gas price used for every Send call. The
// keeper's configured GAS_PRICE is wired in via a constant pricer; tests use
// a fake.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// NewContractClient builds a ContractClient bound to one address and ABI.
// When no chain ID is supplied via WithChainID, every Send queries it from
// the client; most callers supply it explicitly to avoid the extra round
// trip.
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI, opts ...Option) ContractClient {
	cc := &contractClient{
		client: client,
		address: address,
		abi: contractABI,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Option configures a contractClient at construction time.
type Option func(*contractClient)

// WithChainID pins the chain ID used to sign transactions, avoiding an
// eth_chainId round trip on every Send.
func WithChainID(id *big.Int) Option {
	return func(cc *contractClient) { cc.chainID = id }
}

// WithGasPricer overrides the legacy gas price source (defaults to
// eth_gasPrice via the underlying client).
func WithGasPricer(g GasPricer) Option {
	return func(cc *contractClient) { cc.gas = g }
}

// StaticGasPricer returns a fixed legacy gas price, ignoring the node's
// current eth_gasPrice. The keeper's GAS_PRICE configuration is applied this
// way rather than trusting a fee suggestion at send time; MAX_GAS_PRICE is
// not consulted.
type StaticGasPricer struct {
	Price *big.Int
}

// GasPrice implements GasPricer.
func (p StaticGasPricer) GasPrice(ctx context.Context) (*big.Int, error) {
	return p.Price, nil
}

func (cc *contractClient) ContractAddress() common.Address { return cc.address }
func (cc *contractClient) Abi() *abi.ABI { return &cc.abi }

func (cc *contractClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()

	input, err := cc.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &cc.address, Data: input}
	if from != nil {
		msg.From = *from
	}

	out, err := cc.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := cc.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (cc *contractClient) Send(txType types.TxType, gasLimit uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	if pk == nil {
		return common.Hash{}, fmt.Errorf("send %s: nil private key", method)
	}

	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()

	input, err := cc.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	sender := crypto.PubkeyToAddress(pk.PublicKey)
	if from != nil {
		sender = *from
	}

	nonce, err := cc.client.PendingNonceAt(ctx, sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce for %s: %w", method, err)
	}

	gasPrice, err := cc.resolveGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price for %s: %w", method, err)
	}

	if gasLimit == 0 {
		gasLimit, err = cc.client.EstimateGas(ctx, ethereum.CallMsg{
			From: sender,
			To: &cc.address,
			Data: input,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
	}

	chainID := cc.chainID
	if chainID == nil {
		chainID, err = cc.client.NetworkID(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("chain id for %s: %w", method, err)
		}
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce: nonce,
		To: &cc.address,
		Value: big.NewInt(0),
		Gas: gasLimit,
		GasPrice: gasPrice,
		Data: input,
	})

	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(chainID), pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := cc.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

func (cc *contractClient) resolveGasPrice(ctx context.Context) (*big.Int, error) {
	if cc.gas != nil {
		return cc.gas.GasPrice(ctx)
	}
	return cc.client.SuggestGasPrice(ctx)
}

func (cc *contractClient) TransactionData(hash common.Hash) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()

	tx, _, err := cc.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

func (cc *contractClient) DecodeTransaction(data []byte) (*types.DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode transaction: calldata too short")
	}
	method, err := cc.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	args := map[string]interface{}{}
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("decode transaction args: %w", err)
	}
	return &types.DecodedTransaction{MethodName: method.Name, Parameter: args}, nil
}

func (cc *contractClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	if receipt == nil {
		return "[]", nil
	}
	var events []types.DecodedEvent
	for _, log := range receipt.Logs {
		if log.Address != cc.address || len(log.Topics) == 0 {
			continue
		}
		ev, err := cc.abi.EventByID(log.Topics[0])
		if err != nil {
			continue // not one of this contract's events, or unindexed log
		}
		args := map[string]interface{}{}
		if err := ev.Inputs.UnpackIntoMap(args, log.Data); err != nil {
			continue
		}
		for i, input := range ev.Inputs {
			if input.Indexed && i+1 < len(log.Topics) {
				args[input.Name] = log.Topics[i+1].Hex()
			}
		}
		events = append(events, types.DecodedEvent{EventName: ev.Name, Parameter: args})
	}
	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal parsed receipt: %w", err)
	}
	return string(out), nil
}
