package monitor

import (
	"context"
	"fmt"
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
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/util"
)

// DefaultHydrateWindow is how many blocks back of Frob history the monitor
// replays on startup.
const DefaultHydrateWindow = uint64(100_000)

var frobEventSig = crypto.Keccak256Hash([]byte("Frob(bytes32,address,address,address,int256,int256)"))

// ChainReader is the subset of *chain.Chain the monitors need for log
// hydration and subscription; declared locally so tests can substitute a
// fake instead of dialing a node.
type ChainReader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, filter ethereum.FilterQuery, from, to uint64) ([]gethtypes.Log, error)
	Subscribe(ctx context.Context, filter ethereum.FilterQuery, out chan<- gethtypes.Log) (ethereum.Subscription, error)
}

// VaultMonitor owns the known (ilk, urn) set and the unsafe-vault scan.
type VaultMonitor struct {
	ch ChainReader
	vat contractclient.ContractClient
	vatAddr common.Address
	vatABI abi.ABI
	dog contractclient.ContractClient

	hydrateWindow uint64
	log *zap.SugaredLogger

	mu sync.Mutex
	known map[domain.VaultKey]struct{}
}

// NewVaultMonitor builds a VaultMonitor. vat is the Vat contract client used
// for urns()/ilks() reads; vatABI is used to decode Frob log data.
func NewVaultMonitor(ch ChainReader, vat contractclient.ContractClient, vatABI abi.ABI, dog contractclient.ContractClient, hydrateWindow uint64, log *zap.SugaredLogger) *VaultMonitor {
	if hydrateWindow == 0 {
		hydrateWindow = DefaultHydrateWindow
	}
	return &VaultMonitor{
		ch: ch,
		vat: vat,
		vatAddr: vat.ContractAddress(),
		vatABI: vatABI,
		dog: dog,
		hydrateWindow: hydrateWindow,
		log: log,
		known: make(map[domain.VaultKey]struct{}),
	}
}

// KnownVaults returns a snapshot of the currently known (ilk, urn) set.
func (m *VaultMonitor) KnownVaults() []domain.VaultKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.VaultKey, 0, len(m.known))
	for k := range m.known {
		out = append(out, k)
	}
	return out
}

// Hydrate replays Frob logs from max(0, head-hydrateWindow) to head,
// inserting every distinct (ilk, urn) pair into the known set. Repeated
// logs are idempotent.
func (m *VaultMonitor) Hydrate(ctx context.Context) error {
	head, err := m.ch.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	from := uint64(0)
	if head > m.hydrateWindow {
		from = head - m.hydrateWindow
	}

	filter := ethereum.FilterQuery{
		Addresses: []common.Address{m.vatAddr},
		Topics: [][]common.Hash{{frobEventSig}},
	}
	logs, err := m.ch.GetLogs(ctx, filter, from, head)
	if err != nil {
		return err
	}
	for _, l := range logs {
		key, err := m.decodeFrob(l)
		if err != nil {
			if m.log != nil {
				m.log.Warnw("skipping undecodable frob log", "tx", l.TxHash.Hex(), "error", err)
			}
			continue
		}
		m.insert(key)
	}
	return nil
}

// WatchFrob subscribes to new Frob logs and inserts newly observed (ilk,
// urn) pairs into the known set until ctx is cancelled. It never removes
// entries: an emptied vault stays known and may be refilled later.
func (m *VaultMonitor) WatchFrob(ctx context.Context) (<-chan error, error) {
	logCh := make(chan gethtypes.Log, 64)
	filter := ethereum.FilterQuery{
		Addresses: []common.Address{m.vatAddr},
		Topics: [][]common.Hash{{frobEventSig}},
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
				key, err := m.decodeFrob(l)
				if err != nil {
					if m.log != nil {
						m.log.Warnw("skipping undecodable frob log", "error", err)
					}
					continue
				}
				m.insert(key)
			}
		}
	}()
	return errCh, nil
}

func (m *VaultMonitor) decodeFrob(l gethtypes.Log) (domain.VaultKey, error) {
	args := map[string]interface{}{}
	if err := m.vatABI.UnpackIntoMap(args, "Frob", l.Data); err != nil {
		return domain.VaultKey{}, fmt.Errorf("unpack frob: %w", err)
	}
	ilkTag, ok := args["ilk"].([32]byte)
	if !ok {
		return domain.VaultKey{}, fmt.Errorf("frob log missing ilk")
	}
	urn, ok := args["urn"].(common.Address)
	if !ok {
		return domain.VaultKey{}, fmt.Errorf("frob log missing urn")
	}
	return domain.VaultKey{Ilk: util.DecodeIlk(ilkTag), Urn: urn}, nil
}

func (m *VaultMonitor) insert(key domain.VaultKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[key] = struct{}{}
}

// ReadIlk re-reads an ilk's chain parameters; ilk data is never cached
// across scan cycles.
func (m *VaultMonitor) ReadIlk(name string) (domain.Ilk, error) {
	tag := util.EncodeIlk(name)
	out, err := m.vat.Call(nil, "ilks", tag)
	if err != nil {
		return domain.Ilk{}, kerr.Wrap(kerr.ChainRpc, "read ilk "+name, err)
	}
	return domain.Ilk{
		Name: name,
		Art: out[0].(*big.Int),
		Rate: out[1].(*big.Int),
		Spot: out[2].(*big.Int),
		Line: out[3].(*big.Int),
		Dust: out[4].(*big.Int),
	}, nil
}

// ReadDogIlk re-reads the per-ilk Dog liquidation ceiling/penalty params.
func (m *VaultMonitor) ReadDogIlk(name string) (domain.DogIlkParams, error) {
	tag := util.EncodeIlk(name)
	out, err := m.dog.Call(nil, "ilks", tag)
	if err != nil {
		return domain.DogIlkParams{}, kerr.Wrap(kerr.ChainRpc, "read dog ilk "+name, err)
	}
	return domain.DogIlkParams{
		Clip: out[0].(common.Address),
		Chop: out[1].(*big.Int),
		Hole: out[2].(*big.Int),
		Dirt: out[3].(*big.Int),
	}, nil
}

// ScanResult is the outcome of one Scan call: opportunities found plus a
// count of per-urn read errors that did not abort the scan.
type ScanResult struct {
	Opportunities []LiquidationOpportunity
	UrnErrors int
}

// Scan reads ilk and dog data once, then tests every known urn of that ilk
// for safety, emitting a LiquidationOpportunity for each unsafe one.
// Errors reading a single urn are counted and do not abort the scan; an
// error reading ilk or dog data aborts it.
func (m *VaultMonitor) Scan(ilkName string) (ScanResult, error) {
	ilk, err := m.ReadIlk(ilkName)
	if err != nil {
		return ScanResult{}, err
	}
	dogIlk, err := m.ReadDogIlk(ilkName)
	if err != nil {
		return ScanResult{}, err
	}

	var result ScanResult
	for _, key := range m.urnsFor(ilkName) {
		ink, art, err := m.readUrn(key)
		if err != nil {
			result.UrnErrors++
			if m.log != nil {
				m.log.Warnw("scan: failed to read urn", "ilk", ilkName, "urn", key.Urn.Hex(), "error", err)
			}
			continue
		}
		vault := domain.Vault{Key: key, Ink: ink, Art: art}
		if vault.Empty() {
			continue
		}
		if fixed.IsSafe(ink, art, ilk.Spot, ilk.Rate) {
			continue
		}
		result.Opportunities = append(result.Opportunities, LiquidationOpportunity{
			Vault: vault,
			Ilk: ilk,
			Ratio: fixed.CollateralizationRatio(ink, art, ilk.Spot, ilk.Rate),
			LiquidationPenalty: dogIlk.Chop,
		})
	}
	return result, nil
}

func (m *VaultMonitor) urnsFor(ilkName string) []domain.VaultKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VaultKey
	for k := range m.known {
		if k.Ilk == ilkName {
			out = append(out, k)
		}
	}
	return out
}

func (m *VaultMonitor) readUrn(key domain.VaultKey) (ink, art *big.Int, err error) {
	tag := util.EncodeIlk(key.Ilk)
	out, err := m.vat.Call(nil, "urns", tag, key.Urn)
	if err != nil {
		return nil, nil, kerr.Wrap(kerr.ChainRpc, "read urn", err)
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}
