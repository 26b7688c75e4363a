package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/configs"
	"github.com/kusd-keeper/keeper/internal/chain"
	"github.com/kusd-keeper/keeper/internal/executor"
	"github.com/kusd-keeper/keeper/internal/health"
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/orchestrator"
	"github.com/kusd-keeper/keeper/internal/priceservice"
	"github.com/kusd-keeper/keeper/internal/store"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/internal/vat"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/txlistener"
	"github.com/kusd-keeper/keeper/pkg/util"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(log); err != nil {
		log.Fatalw("keeper exited", "error", err)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg, err := configs.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	topo, err := configs.LoadTopology(cfg.TopologyPath)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	pk, err := crypto.HexToECDSA(cfg.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	signer := crypto.PubkeyToAddress(pk.PublicKey)

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}

	gas := contractclient.StaticGasPricer{Price: cfg.GasPrice}
	ch := chain.New(client, pk, cfg.ChainID, gas, log)

	erc20ABI, err := util.LoadABI(topo.Erc20ABI)
	if err != nil {
		return fmt.Errorf("load erc20 abi: %w", err)
	}
	clipperABI, err := util.LoadABI(topo.ClipperABI)
	if err != nil {
		return fmt.Errorf("load clipper abi: %w", err)
	}
	oracleABI, err := util.LoadABI(topo.OracleABI)
	if err != nil {
		return fmt.Errorf("load oracle abi: %w", err)
	}

	vatCC, vatABI, err := contractAt(ch, topo.Vat)
	if err != nil {
		return fmt.Errorf("vat: %w", err)
	}
	joinCC, _, err := contractAt(ch, topo.KusdJoin)
	if err != nil {
		return fmt.Errorf("kusd join: %w", err)
	}
	dogCC, dogABI, err := contractAt(ch, topo.Dog)
	if err != nil {
		return fmt.Errorf("dog: %w", err)
	}
	kusdTokenCC := ch.Contract(common.HexToAddress(topo.KusdToken.Address), erc20ABI)
	flapperCC, flapperABI, err := contractAt(ch, topo.Flapper)
	if err != nil {
		return fmt.Errorf("flapper: %w", err)
	}
	flopperCC, flopperABI, err := contractAt(ch, topo.Flopper)
	if err != nil {
		return fmt.Errorf("flopper: %w", err)
	}
	sklcTokenCC := ch.Contract(common.HexToAddress(topo.SklcToken.Address), erc20ABI)

	psmCC, _, err := contractAt(ch, topo.PSM)
	if err != nil {
		return fmt.Errorf("psm: %w", err)
	}
	dexRouterCC, _, err := contractAt(ch, topo.DexRouter)
	if err != nil {
		return fmt.Errorf("dex router: %w", err)
	}
	dexPairCC, _, err := contractAt(ch, topo.DexPair)
	if err != nil {
		return fmt.Errorf("dex pair: %w", err)
	}
	gemTokenCC := ch.Contract(common.HexToAddress(topo.GemToken.Address), erc20ABI)

	clippers := make(map[string]contractclient.ContractClient, len(topo.Ilks))
	oracles := make(map[string]contractclient.ContractClient, len(topo.Ilks))
	ilkNames := make([]string, 0, len(topo.Ilks))
	for _, ilk := range topo.Ilks {
		clippers[ilk.Name] = ch.Contract(common.HexToAddress(ilk.ClipperAddress), clipperABI)
		oracles[ilk.Name] = ch.Contract(common.HexToAddress(ilk.OracleAddress), oracleABI)
		ilkNames = append(ilkNames, ilk.Name)
	}

	listener := txlistener.NewTxListener(client,
		txlistener.WithPollInterval(3*time.Second),
		txlistener.WithTimeout(5*time.Minute),
	)

	vatMgr := vat.New(vatCC, joinCC, kusdTokenCC, signer, pk, cfg.VatBalanceMethod, cfg.GasLimit, listener, log)
	prices := priceservice.New(oracles, 0)
	gate := txgate.New(txgate.DefaultGap)
	stop := &executor.EmergencyStop{}
	stop.Set(cfg.EmergencyStop)

	vaultMon := monitor.NewVaultMonitor(ch, vatCC, vatABI, dogCC, monitor.DefaultHydrateWindow, log)
	clipMon := monitor.NewClipMonitor(ch, dogCC.ContractAddress(), dogABI, clippers, prices, cfg.MinProfitPercentage, log)
	flapMon := monitor.NewEnglishMonitor(ch, flapperCC, flapperABI, monitor.DefaultFlapBeg, log)
	flopMon := monitor.NewEnglishMonitor(ch, flopperCC, flopperABI, monitor.DefaultFlopBeg, log)

	pegCfg := monitor.PegConfig{
		GemDecimals: topo.GemDecimals,
		Cooldown: cfg.ArbCooldown,
		MaxArbAmount: cfg.MaxArbAmount,
		MaxTradePercentOfPool: cfg.MaxTradePercentOfPool,
		PegUpperLimit: cfg.PegUpperLimit,
		PegLowerLimit: cfg.PegLowerLimit,
		MinArbProfitPercent: cfg.MinArbProfitPercentage,
		SlippageTolerance: cfg.ArbSlippageTolerance,
	}
	pegMon, err := monitor.NewPegMonitor(dexPairCC, dexRouterCC, psmCC, gemTokenCC, common.HexToAddress(topo.GemToken.Address), common.HexToAddress(topo.KusdToken.Address), pegCfg, log)
	if err != nil {
		return fmt.Errorf("build peg monitor: %w", err)
	}

	liqExec := executor.NewLiquidationExecutor(dogCC, gate, signer, pk, cfg.GasLimit, listener, stop, log)
	takeExec := executor.NewTakeExecutor(clippers, vatMgr, gate, signer, pk, cfg.GasLimit, listener, stop, log)
	flapExec := executor.NewFlapExecutor(flapperCC, sklcTokenCC, util.ERC20Balance{Token: sklcTokenCC, Owner: signer}, cfg.FlapMinInitialBid, gate, signer, pk, cfg.GasLimit, listener, stop, log)
	flopExec := executor.NewFlopExecutor(flopperCC, vatMgr, gate, signer, pk, cfg.GasLimit, listener, stop, log)
	pegExec := executor.NewPegExecutor(gemTokenCC, kusdTokenCC, psmCC, dexRouterCC, gate, signer, pk, cfg.GasLimit, listener, stop, pegMon, log)

	tracker := health.NewTracker(cfg.Mode)

	var db *store.Store
	if cfg.DatabaseDSN != "" {
		db, err = store.New(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Mode: cfg.Mode,
		Interval: cfg.CheckInterval,
		Ilks: ilkNames,
		VaultMon: vaultMon,
		LiqExec: liqExec,
		ClipMon: clipMon,
		TakeExec: takeExec,
		FlapMon: flapMon,
		FlapExec: flapExec,
		FlopMon: flopMon,
		FlopExec: flopExec,
		PegMon: pegMon,
		PegExec: pegExec,
		GemBalances: util.ERC20Balance{Token: gemTokenCC, Owner: signer},
		Health: tracker,
		Store: db,
		Log: log,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := vaultMon.Hydrate(ctx); err != nil {
		log.Warnw("vault hydrate failed, starting with an empty known set", "error", err)
	}
	if frobErrs, err := vaultMon.WatchFrob(ctx); err == nil {
		go logWatcherErr(log, "frob watcher", frobErrs)
	} else {
		log.Warnw("could not subscribe to frob events", "error", err)
	}
	if kickErrs, err := flapMon.WatchKick(ctx); err == nil {
		go logWatcherErr(log, "flap kick watcher", kickErrs)
	} else {
		log.Warnw("could not subscribe to flap kick events", "error", err)
	}
	if kickErrs, err := flopMon.WatchKick(ctx); err == nil {
		go logWatcherErr(log, "flop kick watcher", kickErrs)
	} else {
		log.Warnw("could not subscribe to flop kick events", "error", err)
	}
	if barkErrs, err := clipMon.WatchBark(ctx); err == nil {
		go logWatcherErr(log, "clip bark watcher", barkErrs)
	} else {
		log.Warnw("could not subscribe to clip bark events", "error", err)
	}

	httpSrv := &http.Server{Addr: cfg.HealthAddr, Handler: tracker.Router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("health server failed", "error", err)
		}
	}()

	runErr := orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return runErr
}

// contractAt loads the ABI named by data.ABI and returns a contract client
// bound to data.Address, plus the parsed ABI for callers that need to
// decode event logs directly (the Vat's Frob, the Dog's Bark, the English
// auctions' Kick).
func contractAt(ch *chain.Chain, data configs.ContractClientYAMLData) (contractclient.ContractClient, abi.ABI, error) {
	parsed, err := util.LoadABI(data.ABI)
	if err != nil {
		return nil, abi.ABI{}, err
	}
	return ch.Contract(common.HexToAddress(data.Address), parsed), parsed, nil
}

func logWatcherErr(log *zap.SugaredLogger, name string, errCh <-chan error) {
	if err := <-errCh; err != nil {
		log.Errorw(name+" stopped", "error", err)
	}
}
