// Package orchestrator runs the keeper's fixed-interval tick: each tick
// scans every monitor family selected by the configured Mode (Flap/Flop
// auctions are scanned in every mode), then
// dispatches every opportunity found, sequentially, through the shared
// txgate.
package orchestrator

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/executor"
	"github.com/kusd-keeper/keeper/internal/health"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/store"
)

// VaultScanner is the subset of *monitor.VaultMonitor the orchestrator
// needs for one ilk's liquidation scan.
type VaultScanner interface {
	Scan(ilkName string) (monitor.ScanResult, error)
	KnownVaults() []domain.VaultKey
}

// ClipScanner is the subset of *monitor.ClipMonitor the orchestrator needs.
type ClipScanner interface {
	Scan(now time.Time) ([]monitor.BiddingOpportunity, error)
}

// EnglishScanner is the subset of *monitor.EnglishMonitor the orchestrator
// needs; satisfied identically by the Flap and Flop monitor instances.
type EnglishScanner interface {
	Scan(nowUnix int64) ([]monitor.EnglishBidOpportunity, error)
}

// PegPlanner is the subset of *monitor.PegMonitor the orchestrator needs.
type PegPlanner interface {
	Plan(now time.Time, walletGemBalance *big.Int) (*domain.PegArbPlan, string, error)
}

// GemBalanceReader reads the keeper's wallet gem balance ahead of planning
// a peg-arbitrage round-trip.
type GemBalanceReader interface {
	WalletBalance() (*big.Int, error)
}

// LiquidationDispatcher is the subset of *executor.LiquidationExecutor the
// orchestrator needs.
type LiquidationDispatcher interface {
	Dispatch(opp monitor.LiquidationOpportunity) (executor.LiquidationResult, error)
}

// TakeDispatcher is the subset of *executor.TakeExecutor the orchestrator
// needs.
type TakeDispatcher interface {
	Dispatch(opp monitor.BiddingOpportunity) (executor.TakeResult, error)
}

// BidDispatcher is the subset of *executor.FlapExecutor / *executor.FlopExecutor
// the orchestrator needs; both share this Dispatch signature.
type BidDispatcher interface {
	Dispatch(opp monitor.EnglishBidOpportunity) (executor.BidResult, error)
}

// PegExecutorIface is the subset of *executor.PegExecutor the orchestrator
// needs.
type PegExecutorIface interface {
	Execute(plan *domain.PegArbPlan) (executor.PegExecutionResult, error)
}

// Config wires every monitor/executor pair the orchestrator dispatches,
// keyed by the Mode they belong to. Any field may be nil if the
// corresponding ilk set or strategy is unconfigured; the orchestrator
// skips what it was not given.
type Config struct {
	Mode     domain.Mode
	Interval time.Duration
	Ilks     []string

	VaultMon VaultScanner
	LiqExec  LiquidationDispatcher

	ClipMon  ClipScanner
	TakeExec TakeDispatcher

	FlapMon  EnglishScanner
	FlapExec BidDispatcher
	FlopMon  EnglishScanner
	FlopExec BidDispatcher

	PegMon      PegPlanner
	PegExec     PegExecutorIface
	GemBalances GemBalanceReader

	Health *health.Tracker
	Store  *store.Store
	Log    *zap.SugaredLogger
}

// Orchestrator drives the fixed-interval tick loop.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator from cfg. Interval of zero selects the
// default poll period of 30s.
func New(cfg Config) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Orchestrator{cfg: cfg}
}

// Run ticks every cfg.Interval until ctx is cancelled, returning nil on a
// clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.Health != nil {
		o.cfg.Health.SetRunning(true)
		o.cfg.Health.SetMode(o.cfg.Mode)
		defer o.cfg.Health.SetRunning(false)
	}

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Errorw("tick failed", "error", err)
				}
				if o.cfg.Health != nil {
					o.cfg.Health.RecordError()
				}
			}
		}
	}
}

func (o *Orchestrator) includes(family domain.Mode) bool {
	return o.cfg.Mode == domain.ModeFull || o.cfg.Mode == family
}

// Tick runs one scan-and-dispatch cycle: every enabled monitor family scans
// concurrently, then every opportunity found is dispatched sequentially in
// the monitor's emission order.
func (o *Orchestrator) Tick(ctx context.Context) error {
	var (
		liqOpps    []monitor.LiquidationOpportunity
		takeOpps   []monitor.BiddingOpportunity
		flapOpps   []monitor.EnglishBidOpportunity
		flopOpps   []monitor.EnglishBidOpportunity
		vaultCount int
		pegPlan    *domain.PegArbPlan
		pegSkip    string
	)

	g, _ := errgroup.WithContext(ctx)

	if o.includes(domain.ModeKick) && o.cfg.VaultMon != nil {
		g.Go(func() error {
			vaultCount = len(o.cfg.VaultMon.KnownVaults())
			for _, ilk := range o.cfg.Ilks {
				res, err := o.cfg.VaultMon.Scan(ilk)
				if err != nil {
					if o.cfg.Log != nil {
						o.cfg.Log.Warnw("vault scan failed", "ilk", ilk, "error", err)
					}
					continue
				}
				liqOpps = append(liqOpps, res.Opportunities...)
			}
			return nil
		})
	}

	if o.includes(domain.ModeBid) && o.cfg.ClipMon != nil {
		g.Go(func() error {
			opps, err := o.cfg.ClipMon.Scan(time.Now())
			if err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Warnw("clip scan failed", "error", err)
				}
				return nil
			}
			takeOpps = opps
			return nil
		})
	}

	if o.cfg.FlapMon != nil {
		g.Go(func() error {
			opps, err := o.cfg.FlapMon.Scan(time.Now().Unix())
			if err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Warnw("flap scan failed", "error", err)
				}
				return nil
			}
			flapOpps = opps
			return nil
		})
	}

	if o.cfg.FlopMon != nil {
		g.Go(func() error {
			opps, err := o.cfg.FlopMon.Scan(time.Now().Unix())
			if err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Warnw("flop scan failed", "error", err)
				}
				return nil
			}
			flopOpps = opps
			return nil
		})
	}

	if o.includes(domain.ModePeg) && o.cfg.PegMon != nil && o.cfg.GemBalances != nil {
		g.Go(func() error {
			balance, err := o.cfg.GemBalances.WalletBalance()
			if err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Warnw("peg gem balance read failed", "error", err)
				}
				return nil
			}
			plan, reason, err := o.cfg.PegMon.Plan(time.Now(), balance)
			if err != nil {
				if o.cfg.Log != nil {
					o.cfg.Log.Warnw("peg plan failed", "error", err)
				}
				return nil
			}
			pegPlan, pegSkip = plan, reason
			return nil
		})
	}

	_ = g.Wait() // every stage swallows its own error into a log line; Wait never fails

	auctionCount := len(takeOpps) + len(flapOpps) + len(flopOpps)
	if o.cfg.Health != nil {
		o.cfg.Health.RecordTick(time.Now().Unix(), vaultCount, auctionCount)
	}

	if o.cfg.LiqExec != nil {
		for _, opp := range liqOpps {
			o.dispatchLiquidation(opp)
		}
	}
	if o.cfg.TakeExec != nil {
		for _, opp := range takeOpps {
			o.dispatchTake(opp)
		}
	}
	if o.cfg.FlapExec != nil {
		for _, opp := range flapOpps {
			o.dispatchBid(store.DispatchFlapBid, o.cfg.FlapExec, opp)
		}
	}
	if o.cfg.FlopExec != nil {
		for _, opp := range flopOpps {
			o.dispatchBid(store.DispatchFlopBid, o.cfg.FlopExec, opp)
		}
	}
	if pegPlan != nil && o.cfg.PegExec != nil {
		o.dispatchPeg(pegPlan)
	} else if pegSkip != "" && o.cfg.Log != nil {
		o.cfg.Log.Debugw("peg arb skipped", "reason", pegSkip)
	}

	return nil
}

func (o *Orchestrator) dispatchLiquidation(opp monitor.LiquidationOpportunity) {
	result, err := o.cfg.LiqExec.Dispatch(opp)
	succeeded := err == nil && !result.Skipped
	if err != nil && o.cfg.Health != nil {
		o.cfg.Health.RecordError()
	}
	if succeeded && o.cfg.Health != nil {
		o.cfg.Health.RecordLiquidation()
	}
	if o.cfg.Store != nil {
		reason := result.Reason
		if err != nil {
			reason = err.Error()
		}
		_ = o.cfg.Store.RecordDispatch(store.DispatchLiquidation, opp.Vault.Key.Ilk, opp.Vault.Key.Urn.Hex(), result.TxHash.Hex(), nil, succeeded, reason)
	}
	if err != nil && o.cfg.Log != nil {
		o.cfg.Log.Warnw("liquidation dispatch failed", "ilk", opp.Vault.Key.Ilk, "urn", opp.Vault.Key.Urn.Hex(), "error", err)
	}
}

func (o *Orchestrator) dispatchTake(opp monitor.BiddingOpportunity) {
	result, err := o.cfg.TakeExec.Dispatch(opp)
	succeeded := err == nil && !result.Skipped
	if err != nil && o.cfg.Health != nil {
		o.cfg.Health.RecordError()
	}
	if succeeded && o.cfg.Health != nil {
		o.cfg.Health.RecordBid()
	}
	if o.cfg.Store != nil {
		reason := result.Reason
		if err != nil {
			reason = err.Error()
		}
		_ = o.cfg.Store.RecordDispatch(store.DispatchTake, opp.Auction.Key.Ilk, opp.Auction.Key.ID.String(), result.TxHash.Hex(), result.ProfitRad, succeeded, reason)
	}
	if err != nil && o.cfg.Log != nil {
		o.cfg.Log.Warnw("take dispatch failed", "ilk", opp.Auction.Key.Ilk, "id", opp.Auction.Key.ID, "error", err)
	}
}

func (o *Orchestrator) dispatchBid(kind store.DispatchKind, exec BidDispatcher, opp monitor.EnglishBidOpportunity) {
	result, err := exec.Dispatch(opp)
	succeeded := err == nil && !result.Skipped
	if err != nil && o.cfg.Health != nil {
		o.cfg.Health.RecordError()
	}
	if succeeded && o.cfg.Health != nil {
		o.cfg.Health.RecordBid()
	}
	if o.cfg.Store != nil {
		reason := result.Reason
		if err != nil {
			reason = err.Error()
		}
		_ = o.cfg.Store.RecordDispatch(kind, "", opp.Auction.Key.ID.String(), result.TxHash.Hex(), nil, succeeded, reason)
	}
	if err != nil && o.cfg.Log != nil {
		o.cfg.Log.Warnw("bid dispatch failed", "kind", kind, "id", opp.Auction.Key.ID, "error", err)
	}
}

func (o *Orchestrator) dispatchPeg(plan *domain.PegArbPlan) {
	result, err := o.cfg.PegExec.Execute(plan)
	succeeded := err == nil
	if err != nil && o.cfg.Health != nil {
		o.cfg.Health.RecordError()
	}
	if succeeded && o.cfg.Health != nil {
		o.cfg.Health.RecordPegArb(plan.ExpectedProfitGem)
	}
	if o.cfg.Store != nil {
		var txHash string
		if succeeded {
			txHash = result.SecondLegTx.Hex()
		}
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		_ = o.cfg.Store.RecordDispatch(store.DispatchPegArb, "", "", txHash, plan.ExpectedProfitGem, succeeded, reason)
	}
	if err != nil && o.cfg.Log != nil {
		o.cfg.Log.Warnw("peg execute failed", "error", err)
	}
}
