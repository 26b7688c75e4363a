package orchestrator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/executor"
	"github.com/kusd-keeper/keeper/internal/health"
	"github.com/kusd-keeper/keeper/internal/monitor"
)

type fakeVaultScanner struct {
	opps []monitor.LiquidationOpportunity
}

func (f *fakeVaultScanner) Scan(ilkName string) (monitor.ScanResult, error) {
	return monitor.ScanResult{Opportunities: f.opps}, nil
}
func (f *fakeVaultScanner) KnownVaults() []domain.VaultKey { return nil }

type fakeLiqDispatcher struct {
	calls int
}

func (f *fakeLiqDispatcher) Dispatch(opp monitor.LiquidationOpportunity) (executor.LiquidationResult, error) {
	f.calls++
	return executor.LiquidationResult{Vault: opp.Vault.Key, TxHash: common.HexToHash("0x01")}, nil
}

func TestTickDispatchesLiquidationOpportunitiesInKickMode(t *testing.T) {
	vaultKey := domain.VaultKey{Ilk: "ETH-A", Urn: common.HexToAddress("0xaa")}
	vm := &fakeVaultScanner{opps: []monitor.LiquidationOpportunity{{Vault: domain.Vault{Key: vaultKey}}}}
	le := &fakeLiqDispatcher{}
	tracker := health.NewTracker(domain.ModeKick)

	o := New(Config{
		Mode:     domain.ModeKick,
		Interval: time.Millisecond,
		Ilks:     []string{"ETH-A"},
		VaultMon: vm,
		LiqExec:  le,
		Health:   tracker,
	})

	err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, le.calls)
	assert.EqualValues(t, 1, tracker.Snapshot().LiquidationCount)
}

func TestTickSkipsFamiliesNotInScopedMode(t *testing.T) {
	vm := &fakeVaultScanner{opps: []monitor.LiquidationOpportunity{{Vault: domain.Vault{Key: domain.VaultKey{Ilk: "ETH-A"}}}}}
	le := &fakeLiqDispatcher{}

	o := New(Config{
		Mode:     domain.ModePeg, // kick-family monitor configured but mode is peg-only
		Interval: time.Millisecond,
		Ilks:     []string{"ETH-A"},
		VaultMon: vm,
		LiqExec:  le,
	})

	err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, le.calls)
}

type fakePegPlanner struct {
	plan *domain.PegArbPlan
}

func (f *fakePegPlanner) Plan(now time.Time, walletGemBalance *big.Int) (*domain.PegArbPlan, string, error) {
	return f.plan, "", nil
}

type fakeGemBalance struct{ balance *big.Int }

func (f fakeGemBalance) WalletBalance() (*big.Int, error) { return f.balance, nil }

type fakePegExecutor struct {
	calls int
}

func (f *fakePegExecutor) Execute(plan *domain.PegArbPlan) (executor.PegExecutionResult, error) {
	f.calls++
	return executor.PegExecutionResult{Direction: plan.Direction}, nil
}

func TestTickExecutesPegPlanInFullMode(t *testing.T) {
	plan := &domain.PegArbPlan{Direction: domain.HighPriceArb, ExpectedProfitGem: big.NewInt(500)}
	pe := &fakePegExecutor{}
	tracker := health.NewTracker(domain.ModeFull)

	o := New(Config{
		Mode:        domain.ModeFull,
		Interval:    time.Millisecond,
		PegMon:      &fakePegPlanner{plan: plan},
		GemBalances: fakeGemBalance{balance: big.NewInt(1_000_000)},
		PegExec:     pe,
		Health:      tracker,
	})

	err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pe.calls)
	assert.EqualValues(t, 1, tracker.Snapshot().PegArbCount)
	assert.Equal(t, big.NewInt(500), tracker.Snapshot().AccumulatedProfit)
}
