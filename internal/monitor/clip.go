package monitor

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/util"
)

// Tau is the fixed Dutch-auction duration (6 hours).
const Tau = int64(21_600)

var barkEventSig = crypto.Keccak256Hash([]byte("Bark(bytes32,address,uint256,uint256,uint256,address,address,uint256)"))

// PriceService is the subset priceservice.Service the collateral-auction
// monitor needs, declared locally for testability.
type PriceService interface {
	GetPrice(ilk string) (*big.Int, error)
}

// ClipMonitor tracks every open Clipper sale per ilk and emits profitable
// take opportunities on each scan tick.
type ClipMonitor struct {
	ch ChainReader
	dogAddr common.Address
	dogABI abi.ABI
	clippers map[string]contractclient.ContractClient // ilk -> Clipper contract
	prices PriceService
	minProfitPercent *big.Int // basis points, e.g. 500 = 5.00%
	log *zap.SugaredLogger

	mu sync.Mutex
	known map[domain.ClipAuctionKey]struct{}
}

// NewClipMonitor builds a ClipMonitor. clippers maps ilk name to its
// Clipper contract client.
func NewClipMonitor(ch ChainReader, dogAddr common.Address, dogABI abi.ABI, clippers map[string]contractclient.ContractClient, prices PriceService, minProfitPercent *big.Int, log *zap.SugaredLogger) *ClipMonitor {
	return &ClipMonitor{
		ch: ch,
		dogAddr: dogAddr,
		dogABI: dogABI,
		clippers: clippers,
		prices: prices,
		minProfitPercent: minProfitPercent,
		log: log,
		known: make(map[domain.ClipAuctionKey]struct{}),
	}
}

// WatchBark subscribes to Bark events and adds the newly started auction to
// the tracked set.
func (m *ClipMonitor) WatchBark(ctx context.Context) (<-chan error, error) {
	logCh := make(chan gethtypes.Log, 64)
	filter := ethereum.FilterQuery{
		Addresses: []common.Address{m.dogAddr},
		Topics: [][]common.Hash{{barkEventSig}},
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
				key, err := m.decodeBark(l)
				if err != nil {
					if m.log != nil {
						m.log.Warnw("skipping undecodable bark log", "error", err)
					}
					continue
				}
				m.insert(key)
			}
		}
	}()
	return errCh, nil
}

func (m *ClipMonitor) decodeBark(l gethtypes.Log) (domain.ClipAuctionKey, error) {
	args := map[string]interface{}{}
	if err := m.dogABI.UnpackIntoMap(args, "Bark", l.Data); err != nil {
		return domain.ClipAuctionKey{}, err
	}
	ilkTag := args["ilk"].([32]byte)
	id := args["id"].(*big.Int)
	return domain.ClipAuctionKey{Ilk: util.DecodeIlk(ilkTag), ID: id}, nil
}

func (m *ClipMonitor) insert(key domain.ClipAuctionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[key] = struct{}{}
}

func (m *ClipMonitor) remove(key domain.ClipAuctionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.known, key)
}

func (m *ClipMonitor) trackedKeys() []domain.ClipAuctionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ClipAuctionKey, 0, len(m.known))
	for k := range m.known {
		out = append(out, k)
	}
	return out
}

// readSale re-reads one Clipper sale by id.
func (m *ClipMonitor) readSale(key domain.ClipAuctionKey) (domain.ClipAuction, error) {
	clipper, ok := m.clippers[key.Ilk]
	if !ok {
		return domain.ClipAuction{}, kerr.New(kerr.Config, "no clipper configured for ilk "+key.Ilk)
	}
	out, err := clipper.Call(nil, "sales", key.ID)
	if err != nil {
		return domain.ClipAuction{}, kerr.Wrap(kerr.ChainRpc, "read sale", err)
	}
	return domain.ClipAuction{
		Key: key,
		Pos: out[0].(*big.Int),
		Tab: out[1].(*big.Int),
		Lot: out[2].(*big.Int),
		Usr: out[3].(common.Address),
		Tic: out[4].(*big.Int).Int64(),
		Top: out[5].(*big.Int),
	}, nil
}

// Scan re-reads every tracked auction, drops closed ones, and emits a
// BiddingOpportunity for each whose profit percent clears the bar. Results
// are ordered by descending profit percent.
func (m *ClipMonitor) Scan(now time.Time) ([]BiddingOpportunity, error) {
	var opps []BiddingOpportunity
	for _, key := range m.trackedKeys() {
		auction, err := m.readSale(key)
		if err != nil {
			if m.log != nil {
				m.log.Warnw("scan: failed to read sale", "ilk", key.Ilk, "id", key.ID, "error", err)
			}
			continue
		}
		if auction.Status() == domain.StatusClosed {
			m.remove(key)
			continue
		}

		currentPrice := fixed.AuctionPrice(auction.Top, auction.Tic, Tau, now.Unix())
		marketPrice, err := m.prices.GetPrice(key.Ilk)
		if err != nil {
			if m.log != nil {
				m.log.Warnw("scan: failed to read market price", "ilk", key.Ilk, "error", err)
			}
			continue
		}
		profitPercent := fixed.ProfitPercentage(currentPrice, marketPrice)
		if profitPercent.Cmp(m.minProfitPercent) < 0 {
			continue
		}
		opps = append(opps, BiddingOpportunity{
			Auction: auction,
			CurrentPrice: currentPrice,
			MarketPrice: marketPrice,
			ProfitPercent: profitPercent,
			MaxTake: auction.Lot,
		})
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].ProfitPercent.Cmp(opps[j].ProfitPercent) > 0
	})
	return opps, nil
}
