package monitor

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
)

var kickEventSig = crypto.Keccak256Hash([]byte("Kick(uint256,uint256,uint256,address,uint48,uint48)"))

// DefaultFlapBeg / DefaultFlopBeg are the fallback minimum bid-improvement
// factors used when the contract read fails at monitor start.
var (
	DefaultFlapBeg = mulRay(105, 100) // 1.05
	DefaultFlopBeg = mulRay(95, 100) // 0.95
)

func mulRay(num, den int64) *big.Int {
	n := new(big.Int).Mul(big.NewInt(num), fixed.RAY)
	return n.Div(n, big.NewInt(den))
}

// EnglishMonitor tracks Flap or Flop auctions to expiry; the same
// implementation serves both, distinguished only by which
// contract client and ABI it is constructed with.
type EnglishMonitor struct {
	ch ChainReader
	contract contractclient.ContractClient
	contractABI abi.ABI
	beg *big.Int
	log *zap.SugaredLogger

	mu sync.Mutex
	known map[domain.EnglishAuctionKey]struct{}
}

// NewEnglishMonitor builds an EnglishMonitor bound to one Flapper or
// Flopper. defaultBeg is used if reading `beg` from the contract fails.
func NewEnglishMonitor(ch ChainReader, contract contractclient.ContractClient, contractABI abi.ABI, defaultBeg *big.Int, log *zap.SugaredLogger) *EnglishMonitor {
	m := &EnglishMonitor{
		ch: ch,
		contract: contract,
		contractABI: contractABI,
		beg: defaultBeg,
		log: log,
		known: make(map[domain.EnglishAuctionKey]struct{}),
	}
	if out, err := contract.Call(nil, "beg"); err == nil && len(out) == 1 {
		if beg, ok := out[0].(*big.Int); ok {
			m.beg = beg
		}
	}
	return m
}

// Beg returns the minimum bid-improvement factor in effect.
func (m *EnglishMonitor) Beg() *big.Int { return m.beg }

// WatchKick subscribes to Kick events and adds the newly started auction to
// the tracked set.
func (m *EnglishMonitor) WatchKick(ctx context.Context) (<-chan error, error) {
	logCh := make(chan gethtypes.Log, 64)
	filter := ethereum.FilterQuery{
		Addresses: []common.Address{m.contract.ContractAddress()},
		Topics: [][]common.Hash{{kickEventSig}},
	}
	sub, err := m.ch.Subscribe(ctx, filter, logCh)
	if err != nil {
		return nil, err
	}

	errCh := make(chan error, 1)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				errCh <- nil
				return
			case err := <-sub.Err():
				errCh <- err
				return
			case l := <-logCh:
				args := map[string]interface{}{}
				if err := m.contractABI.UnpackIntoMap(args, "Kick", l.Data); err != nil {
					if m.log != nil {
						m.log.Warnw("skipping undecodable kick log", "error", err)
					}
					continue
				}
				id, ok := args["id"].(*big.Int)
				if !ok {
					continue
				}
				m.insert(domain.EnglishAuctionKey{ID: id})
			}
		}
	}()
	return errCh, nil
}

func (m *EnglishMonitor) insert(key domain.EnglishAuctionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[key] = struct{}{}
}

func (m *EnglishMonitor) remove(key domain.EnglishAuctionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.known, key)
}

func (m *EnglishMonitor) trackedKeys() []domain.EnglishAuctionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EnglishAuctionKey, 0, len(m.known))
	for k := range m.known {
		out = append(out, k)
	}
	return out
}

func (m *EnglishMonitor) readBid(key domain.EnglishAuctionKey) (domain.EnglishAuction, error) {
	out, err := m.contract.Call(nil, "bids", key.ID)
	if err != nil {
		return domain.EnglishAuction{}, err
	}
	return domain.EnglishAuction{
		Key: key,
		Bid: out[0].(*big.Int),
		Lot: out[1].(*big.Int),
		Guy: out[2].(common.Address),
		Tic: out[3].(*big.Int).Int64(),
		End: out[4].(*big.Int).Int64(),
	}, nil
}

// Scan re-reads every tracked auction, drops expired ones, and emits an
// EnglishBidOpportunity for each still-active auction. Profitable is always
// false here: it is set by an external strategy or configuration before
// dispatch, never computed by the monitor.
func (m *EnglishMonitor) Scan(nowUnix int64) ([]EnglishBidOpportunity, error) {
	var opps []EnglishBidOpportunity
	for _, key := range m.trackedKeys() {
		auction, err := m.readBid(key)
		if err != nil {
			if m.log != nil {
				m.log.Warnw("scan: failed to read bid", "id", key.ID, "error", err)
			}
			continue
		}
		if auction.Status(nowUnix) == domain.StatusClosed {
			m.remove(key)
			continue
		}
		opps = append(opps, EnglishBidOpportunity{Auction: auction, Beg: m.beg, Profitable: false})
	}
	return opps, nil
}

// NextFlapBid computes the minimum sKLC bid the Flapper's tend() will
// accept: beg times the current highest bid, or minInitial if no bid has
// been placed yet.
func NextFlapBid(auction domain.EnglishAuction, beg, minInitial *big.Int) *big.Int {
	if auction.Bid == nil || auction.Bid.Sign() <= 0 {
		return new(big.Int).Set(minInitial)
	}
	return fixed.RMul(auction.Bid, beg)
}

// NextFlopLot computes the maximum sKLC lot the Flopper's dent() will
// accept: beg times the current lot. A nil or non-positive lot yields zero.
func NextFlopLot(auction domain.EnglishAuction, beg *big.Int) *big.Int {
	if auction.Lot == nil || auction.Lot.Sign() <= 0 {
		return new(big.Int)
	}
	return fixed.RMul(auction.Lot, beg)
}
