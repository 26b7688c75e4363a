// Package chain is the thin, synchronous-looking wrapper over the node RPC
// that every monitor and executor depends on: current block, log queries,
// log subscriptions, and a per-contract client cache. CurrentBlock and
// GetLogs retry ChainRpc failures with capped backoff; Subscribe and the
// Call/Send of the cached contract clients are not retried.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
)

// CallTimeout bounds a single RPC read at 15s.
const CallTimeout = 15 * time.Second

// maxBackoff caps the ChainRpc retry backoff at 60s.
const maxBackoff = 60 * time.Second

// Chain is the keeper's single point of contact with the node. It owns the
// signer and a per-address ContractClient cache, and wraps CurrentBlock and
// GetLogs in capped exponential backoff on ChainRpc failures. Calls made
// through the cached ContractClients are not retried.
type Chain struct {
	client *ethclient.Client
	privateKey *ecdsa.PrivateKey
	myAddr common.Address
	chainID *big.Int
	gas contractclient.GasPricer
	log *zap.SugaredLogger

	mu sync.Mutex
	ccm map[common.Address]contractclient.ContractClient

	// backoffBase overrides the initial retry backoff; zero means 1s. Tests
	// set this to keep withRetry fast.
	backoffBase time.Duration
}

// New builds a Chain bound to an already-dialed client and signing key.
// chainID should be pinned from configuration to avoid an eth_chainId round
// trip on every send.
func New(client *ethclient.Client, privateKey *ecdsa.PrivateKey, chainID *big.Int, gas contractclient.GasPricer, log *zap.SugaredLogger) *Chain {
	return &Chain{
		client: client,
		privateKey: privateKey,
		myAddr: crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID: chainID,
		gas: gas,
		log: log,
		ccm: make(map[common.Address]contractclient.ContractClient),
	}
}

// SignerAddress returns the keeper's own wallet address.
func (c *Chain) SignerAddress() common.Address { return c.myAddr }

// PrivateKey returns the signing key, for callers (executors) that build
// transactions through a ContractClient directly.
func (c *Chain) PrivateKey() *ecdsa.PrivateKey { return c.privateKey }

// Contract returns the cached ContractClient for address, building one from
// contractABI on first use.
func (c *Chain) Contract(address common.Address, contractABI abi.ABI) contractclient.ContractClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.ccm[address]; ok {
		return cc
	}
	cc := contractclient.NewContractClient(c.client, address, contractABI,
		contractclient.WithChainID(c.chainID),
		contractclient.WithGasPricer(c.gas),
	)
	c.ccm[address] = cc
	return cc
}

// CurrentBlock returns the latest block number, retrying ChainRpc failures
// with capped exponential backoff until ctx is done.
func (c *Chain) CurrentBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withRetry(ctx, "current_block", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		defer cancel()
		n, err := c.client.BlockNumber(callCtx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	return head, err
}

// GetLogs fetches logs matching filter in [from, to], retrying ChainRpc
// failures with capped exponential backoff.
func (c *Chain) GetLogs(ctx context.Context, filter ethereum.FilterQuery, from, to uint64) ([]gethtypes.Log, error) {
	filter.FromBlock = new(big.Int).SetUint64(from)
	filter.ToBlock = new(big.Int).SetUint64(to)

	var logs []gethtypes.Log
	err := c.withRetry(ctx, "get_logs", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		defer cancel()
		l, err := c.client.FilterLogs(callCtx, filter)
		if err != nil {
			return err
		}
		logs = l
		return nil
	})
	return logs, err
}

// Subscribe opens a log subscription for filter, delivering matching logs
// on out in on-chain order per address; the caller owns out and must drain
// it until the returned subscription's Err() channel closes.
func (c *Chain) Subscribe(ctx context.Context, filter ethereum.FilterQuery, out chan<- gethtypes.Log) (ethereum.Subscription, error) {
	sub, err := c.client.SubscribeFilterLogs(ctx, filter, out)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "subscribe filter logs", err)
	}
	return sub, nil
}

// withRetry runs fn, retrying with capped exponential backoff (1s, 2s, 4s,
// ... capped at maxBackoff) on every failure until ctx is cancelled.
func (c *Chain) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := c.backoffBase
	if backoff == 0 {
		backoff = time.Second
	}
	for attempt := 1;; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return kerr.Wrap(kerr.Interrupted, op, ctx.Err())
		}
		if c.log != nil {
			c.log.Warnw("chain rpc retry", "op", op, "attempt", attempt, "backoff", backoff, "error", err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return kerr.Wrap(kerr.Interrupted, op, ctx.Err())
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
