package monitor

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
)

// DefaultMaxTradePercentOfPool is the default pool-trade cap. NewPegMonitor
// also defaults an unset MinPoolLiquidity to 5 whole gem units; Cooldown has
// no default here.
var (
	DefaultMaxTradePercentOfPool = big.NewInt(10) // percent, integer
)

// PegConfig holds the tunables the Peg Arbitrage state machine reads every
// tick/§6.
type PegConfig struct {
	GemDecimals uint8
	Cooldown time.Duration
	MinPoolLiquidity *big.Int // gem native units
	MaxArbAmount *big.Int // gem native units
	MaxTradePercentOfPool *big.Int // integer percent, default 10
	PegUpperLimit *big.Int // RAY
	PegLowerLimit *big.Int // RAY
	MinArbProfitPercent *big.Int // two implied decimals, e.g. 50 == 0.50%
	SlippageTolerance *big.Int // two implied decimals, e.g. 100 == 1.00%
}

// PegMonitor plans (but does not execute) a peg-arbitrage round-trip each
// tick Execution of the planned legs belongs to the peg
// executor; this type owns only the read-and-decide half of the state
// machine plus the cooldown clock.
type PegMonitor struct {
	pair contractclient.ContractClient
	router contractclient.ContractClient
	psmC contractclient.ContractClient
	gem contractclient.ContractClient // ERC20 gem token, for balanceOf
	kusd common.Address
	cfg PegConfig
	log *zap.SugaredLogger

	gemIsToken0 bool
	gemConversion *big.Int
	pocket common.Address

	mu sync.Mutex
	lastArb time.Time
}

// NewPegMonitor builds a PegMonitor. gemAddr/kusdAddr identify the PSM's two
// legs so gemIsToken0 can be determined from the pair's token0() once at
// construction, rather than on every Plan call.
func NewPegMonitor(pair, router, psmC, gem contractclient.ContractClient, gemAddr, kusdAddr common.Address, cfg PegConfig, log *zap.SugaredLogger) (*PegMonitor, error) {
	out, err := pair.Call(nil, "token0")
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read pair token0", err)
	}
	token0, ok := out[0].(common.Address)
	if !ok {
		return nil, kerr.New(kerr.ChainRpc, "unexpected token0 return type")
	}

	pocketOut, err := psmC.Call(nil, "pocket")
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read psm pocket", err)
	}
	pocket, ok := pocketOut[0].(common.Address)
	if !ok {
		return nil, kerr.New(kerr.ChainRpc, "unexpected pocket return type")
	}

	if cfg.MaxTradePercentOfPool == nil {
		cfg.MaxTradePercentOfPool = DefaultMaxTradePercentOfPool
	}
	if cfg.MinPoolLiquidity == nil {
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.GemDecimals)), nil)
		cfg.MinPoolLiquidity = new(big.Int).Mul(big.NewInt(5), unit)
	}

	exp := 18 - int(cfg.GemDecimals)
	if exp < 0 {
		exp = 0
	}
	return &PegMonitor{
		pair: pair,
		router: router,
		psmC: psmC,
		gem: gem,
		kusd: kusdAddr,
		cfg: cfg,
		log: log,
		gemIsToken0: token0 == gemAddr,
		gemConversion: new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil),
		pocket: pocket,
	}, nil
}

// MarkExecuted records a successful round-trip's completion time, starting
// the cooldown clock. Called by the executor, not the monitor itself.
func (m *PegMonitor) MarkExecuted(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastArb = now
}

func (m *PegMonitor) cooldownActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastArb.IsZero() && now.Sub(m.lastArb) < m.cfg.Cooldown
}

func (m *PegMonitor) reserves() (gemReserve, kusdReserve *big.Int, err error) {
	out, err := m.pair.Call(nil, "getReserves")
	if err != nil {
		return nil, nil, kerr.Wrap(kerr.ChainRpc, "read pair reserves", err)
	}
	reserve0, _ := out[0].(*big.Int)
	reserve1, _ := out[1].(*big.Int)
	if m.gemIsToken0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

func (m *PegMonitor) readFee(method string) (*big.Int, error) {
	out, err := m.psmC.Call(nil, method)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "read psm "+method, err)
	}
	fee, ok := out[0].(*big.Int)
	if !ok {
		return nil, kerr.New(kerr.ChainRpc, "unexpected "+method+" return type")
	}
	return fee, nil
}

func (m *PegMonitor) amountOut(path []common.Address, amountIn *big.Int) (*big.Int, error) {
	out, err := m.router.Call(nil, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, kerr.Wrap(kerr.ChainRpc, "simulate router", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, kerr.New(kerr.ChainRpc, "unexpected getAmountsOut return type")
	}
	return amounts[len(amounts)-1], nil
}

func applySlippage(amount, slippageTolerance *big.Int) *big.Int {
	factor := new(big.Int).Sub(big.NewInt(10000), slippageTolerance)
	out := new(big.Int).Mul(amount, factor)
	return out.Quo(out, big.NewInt(10000))
}

// Plan runs one pass of the state machine. A nil plan with a
// non-empty skip reason means the tick produced no actionable opportunity;
// it is not an error.
func (m *PegMonitor) Plan(now time.Time, walletGemBalance *big.Int) (*domain.PegArbPlan, string, error) {
	if m.cooldownActive(now) {
		return nil, "cooldown active", nil
	}

	gemReserve, kusdReserve, err := m.reserves()
	if err != nil {
		return nil, "", err
	}
	if gemReserve.Cmp(m.cfg.MinPoolLiquidity) < 0 {
		return nil, "pool liquidity below minimum", nil
	}

	price := fixed.PegPrice(gemReserve, kusdReserve, m.gemConversion)
	deviation := fixed.DeviationPercent(price)
	if deviation.Cmp(m.cfg.MinArbProfitPercent) < 0 {
		return nil, "deviation below minimum profit bar", nil
	}

	maxPoolTrade := new(big.Int).Mul(gemReserve, m.cfg.MaxTradePercentOfPool)
	maxPoolTrade.Quo(maxPoolTrade, big.NewInt(100))

	var direction domain.PegArbDirection
	switch {
	case price.Cmp(m.cfg.PegUpperLimit) > 0:
		direction = domain.HighPriceArb
	case price.Cmp(m.cfg.PegLowerLimit) < 0:
		direction = domain.LowPriceArb
	default:
		return nil, "price within peg band", nil
	}

	trade := minBig(walletGemBalance, m.cfg.MaxArbAmount, maxPoolTrade)
	if direction == domain.LowPriceArb {
		pocketBalOut, err := m.gem.Call(nil, "balanceOf", m.pocket)
		if err != nil {
			return nil, "", kerr.Wrap(kerr.ChainRpc, "read pocket balance", err)
		}
		pocketBal, ok := pocketBalOut[0].(*big.Int)
		if !ok {
			return nil, "", kerr.New(kerr.ChainRpc, "unexpected pocket balance return type")
		}
		trade = minBig(trade, pocketBal)
	}
	if trade.Sign() <= 0 {
		return nil, "capped trade size is zero", nil
	}

	tin, err := m.readFee("tin")
	if err != nil {
		return nil, "", err
	}
	tout, err := m.readFee("tout")
	if err != nil {
		return nil, "", err
	}

	// dexLegOut is what the DEX leg's own swap actually returns (gem for
	// HighPriceArb, kusd for LowPriceArb); slippage protection belongs to
	// this amount alone, never to the round-trip's net gem result.
	var dexLegOut, expectedOut, expectedProfitGem *big.Int
	switch direction {
	case domain.HighPriceArb:
		wadGem := new(big.Int).Mul(trade, m.gemConversion)
		kusdMinted := fixed.WMul(wadGem, new(big.Int).Sub(fixed.WAD, tin))
		dexLegOut, err = m.amountOut([]common.Address{m.kusd, m.gem.ContractAddress()}, kusdMinted)
		if err != nil {
			return nil, "", err
		}
		expectedOut = dexLegOut
		expectedProfitGem = new(big.Int).Sub(expectedOut, trade)
	case domain.LowPriceArb:
		kusdBought, err2 := m.amountOut([]common.Address{m.gem.ContractAddress(), m.kusd}, trade)
		if err2 != nil {
			return nil, "", err2
		}
		dexLegOut = kusdBought
		expectedOut = fixed.PSMRedeemGemOut(kusdBought, m.gemConversion, tout)
		expectedProfitGem = new(big.Int).Sub(expectedOut, trade)
	}

	expectedProfitPercent := fixed.ProfitPercentage(trade, new(big.Int).Add(trade, expectedProfitGem))
	if expectedProfitGem.Sign() <= 0 || expectedProfitPercent.Cmp(m.cfg.MinArbProfitPercent) < 0 {
		return nil, "expected profit below minimum bar", nil
	}

	minOut := applySlippage(dexLegOut, m.cfg.SlippageTolerance)

	return &domain.PegArbPlan{
		Direction: direction,
		PriceRay: price,
		DeviationPercent: deviation,
		TradeAmountGem: trade,
		ExpectedOut: expectedOut,
		MinOut: minOut,
		ExpectedProfitGem: expectedProfitGem,
		ExpectedProfitPercent: expectedProfitPercent,
	}, "", nil
}

func minBig(values...*big.Int) *big.Int {
	min := values[0]
	for _, v := range values[1:] {
		if v != nil && v.Cmp(min) < 0 {
			min = v
		}
	}
	return new(big.Int).Set(min)
}
