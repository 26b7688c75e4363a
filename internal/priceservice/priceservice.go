// Package priceservice reads collateral oracle prices through a
// per-collateral TTL cache
package priceservice

import (
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
)

// DefaultTTL is the oracle cache lifetime
const DefaultTTL = 30 * time.Second

// wadToRay scales an 18-decimal oracle price up to the 27-decimal RAY
// scale calls for ("price_wad · 10^9").
var wadToRay = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)

type entry struct {
	priceRay *big.Int
	at time.Time
}

// Service is the per-collateral oracle price cache. Concurrent get_price
// calls for the same ilk are deduplicated via singleflight so a cache miss
// triggers exactly one oracle read.
type Service struct {
	ttl time.Duration
	oracles map[string]contractclient.ContractClient // ilk -> oracle contract

	mu sync.RWMutex
	cache map[string]entry

	group singleflight.Group
}

// New builds a Service over the given per-ilk oracle clients. ttl of zero
// selects DefaultTTL.
func New(oracles map[string]contractclient.ContractClient, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		ttl: ttl,
		oracles: oracles,
		cache: make(map[string]entry),
	}
}

// GetPrice returns the RAY-scaled price for ilk, serving from cache within
// the TTL and otherwise calling peek() on the configured oracle.
func (s *Service) GetPrice(ilk string) (*big.Int, error) {
	if cached, ok := s.lookup(ilk); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(ilk, func() (interface{}, error) {
		if cached, ok := s.lookup(ilk); ok {
			return cached, nil
		}
		oracle, ok := s.oracles[ilk]
		if !ok {
			return nil, kerr.New(kerr.Config, "no oracle configured for ilk "+ilk)
		}

		out, err := oracle.Call(nil, "peek")
		if err != nil {
			return nil, kerr.Wrap(kerr.ChainRpc, "peek oracle for "+ilk, err)
		}
		priceWad, valid := out[0].(*big.Int), out[1].(bool)
		if !valid {
			return nil, kerr.New(kerr.InvalidOracle, "oracle invalid for ilk "+ilk)
		}

		priceRay := new(big.Int).Mul(priceWad, wadToRay)
		s.store(ilk, priceRay)
		return priceRay, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// ClearCache drops every cached price, forcing the next GetPrice call per
// ilk to re-read the oracle.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]entry)
}

func (s *Service) lookup(ilk string) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[ilk]
	if !ok || time.Since(e.at) >= s.ttl {
		return nil, false
	}
	return e.priceRay, true
}

func (s *Service) store(ilk string, priceRay *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[ilk] = entry{priceRay: priceRay, at: time.Now()}
}
