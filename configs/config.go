// Package configs loads the keeper's two-layer configuration: secrets and
// per-process tuning from the environment, contract topology from YAML.
package configs

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/kerr"
)

// IlkTopology names one collateral type's on-chain addresses.
type IlkTopology struct {
	Name string `yaml:"name"`
	ClipperAddress string `yaml:"clipperAddress"`
	OracleAddress string `yaml:"oracleAddress"`
}

// ContractClientYAMLData names one ABI-bearing contract's address and ABI
// file path.
type ContractClientYAMLData struct {
	Address string `yaml:"address"`
	ABI string `yaml:"abi"`
}

// Topology is the contract-layout half of the configuration, loaded from
// YAML so the keeper can track an arbitrary ilk set without one env var per
// collateral type.
type Topology struct {
	Vat ContractClientYAMLData `yaml:"vat"`
	Dog ContractClientYAMLData `yaml:"dog"`
	KusdJoin ContractClientYAMLData `yaml:"kusdJoin"`
	KusdToken ContractClientYAMLData `yaml:"kusdToken"`
	Flapper ContractClientYAMLData `yaml:"flapper"`
	Flopper ContractClientYAMLData `yaml:"flopper"`
	SklcToken ContractClientYAMLData `yaml:"sklcToken"`

	ClipperABI string `yaml:"clipperAbi"`
	OracleABI string `yaml:"oracleAbi"`
	Erc20ABI string `yaml:"erc20Abi"`

	PSM ContractClientYAMLData `yaml:"psm"`
	DexRouter ContractClientYAMLData `yaml:"dexRouter"`
	DexPair ContractClientYAMLData `yaml:"dexPair"`
	GemToken ContractClientYAMLData `yaml:"gemToken"`
	GemDecimals uint8 `yaml:"gemDecimals"`

	Ilks []IlkTopology `yaml:"ilks"`
}

// LoadTopology reads and parses the contract-topology YAML document.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.Wrap(kerr.Config, "read topology file "+path, err)
	}
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, kerr.Wrap(kerr.Config, "parse topology YAML "+path, err)
	}
	return &topo, nil
}

// Config is the secrets/tuning half of the configuration, loaded from the
// process environment.
type Config struct {
	PrivateKeyHex string
	RPCURL string
	ChainID *big.Int
	Mode domain.Mode
	CheckInterval time.Duration

	MinProfitPercentage *big.Int // two implied decimals (basis points), e.g. 500 = 5.00%
	MaxGasPrice *big.Int // wei
	GasLimit uint64
	GasPrice *big.Int // wei
	MaxCollateralPerAuction *big.Int // WAD
	EmergencyStop bool

	VatBalanceMethod string // "dai" or "kusd"

	PegUpperLimit *big.Int // RAY
	PegLowerLimit *big.Int // RAY
	MaxArbAmount *big.Int // gem native units
	MinArbProfitPercentage *big.Int // two implied decimals
	ArbSlippageTolerance *big.Int // two implied decimals
	ArbCooldown time.Duration
	MaxTradePercentOfPool *big.Int // integer percent

	FlapMinInitialBid *big.Int // sKLC, WAD, minimum opening Flap bid

	// DatabaseDSN is optional: when empty the keeper runs without an audit
	// trail.
	DatabaseDSN string
	HealthAddr string

	TopologyPath string
}

// Load reads Config from the process environment, after an optional
// godotenv.Load() in main has populated it from a local .env file.
func Load() (*Config, error) {
	cfg := &Config{
		PrivateKeyHex: os.Getenv("PRIVATE_KEY"),
		RPCURL: os.Getenv("RPC_URL"),
		Mode: domain.Mode(getEnvDefault("MODE", "full")),
		TopologyPath: getEnvDefault("KEEPER_CONFIG", "config/keeper.yaml"),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		HealthAddr: getEnvDefault("HEALTH_ADDR", ":9090"),
		VatBalanceMethod: getEnvDefault("VAT_BALANCE_METHOD", "kusd"),
	}

	var err error
	if cfg.ChainID, err = parseBigIntEnv("CHAIN_ID", true); err != nil {
		return nil, err
	}

	checkIntervalMs, err := parseIntEnvDefault("CHECK_INTERVAL", 30_000)
	if err != nil {
		return nil, err
	}
	cfg.CheckInterval = time.Duration(checkIntervalMs) * time.Millisecond

	if cfg.MinProfitPercentage, err = parseBigIntEnvDefault("MIN_PROFIT_PERCENTAGE", big.NewInt(100)); err != nil {
		return nil, err
	}
	if cfg.MaxGasPrice, err = parseBigIntEnv("MAX_GAS_PRICE", true); err != nil {
		return nil, err
	}
	gasLimit, err := parseIntEnvDefault("GAS_LIMIT", 500_000)
	if err != nil {
		return nil, err
	}
	cfg.GasLimit = uint64(gasLimit)
	if cfg.GasPrice, err = parseBigIntEnv("GAS_PRICE", true); err != nil {
		return nil, err
	}
	if cfg.MaxCollateralPerAuction, err = parseBigIntEnv("MAX_COLLATERAL_PER_AUCTION", true); err != nil {
		return nil, err
	}
	cfg.EmergencyStop = os.Getenv("EMERGENCY_STOP") == "true"

	if cfg.PegUpperLimit, err = parseBigIntEnvDefault("PEG_UPPER_LIMIT", new(big.Int).Add(ray(), div100(ray())) /* 1.01 */); err != nil {
		return nil, err
	}
	if cfg.PegLowerLimit, err = parseBigIntEnvDefault("PEG_LOWER_LIMIT", new(big.Int).Sub(ray(), div100(ray())) /* 0.99 */); err != nil {
		return nil, err
	}
	if cfg.MaxArbAmount, err = parseBigIntEnv("MAX_ARB_AMOUNT", true); err != nil {
		return nil, err
	}
	if cfg.MinArbProfitPercentage, err = parseBigIntEnvDefault("MIN_ARB_PROFIT_PERCENTAGE", big.NewInt(50)); err != nil {
		return nil, err
	}
	if cfg.ArbSlippageTolerance, err = parseBigIntEnvDefault("ARB_SLIPPAGE_TOLERANCE", big.NewInt(100)); err != nil {
		return nil, err
	}
	arbCooldownMs, err := parseIntEnvDefault("ARB_COOLDOWN_MS", 60_000)
	if err != nil {
		return nil, err
	}
	cfg.ArbCooldown = time.Duration(arbCooldownMs) * time.Millisecond
	if cfg.MaxTradePercentOfPool, err = parseBigIntEnvDefault("MAX_TRADE_PERCENT_OF_POOL", big.NewInt(10)); err != nil {
		return nil, err
	}
	if cfg.FlapMinInitialBid, err = parseBigIntEnvDefault("FLAP_MIN_INITIAL_BID", big.NewInt(0)); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PrivateKeyHex == "" {
		return kerr.New(kerr.Config, "PRIVATE_KEY is required")
	}
	if c.RPCURL == "" {
		return kerr.New(kerr.Config, "RPC_URL is required")
	}
	if c.ChainID == nil {
		return kerr.New(kerr.Config, "CHAIN_ID is required")
	}
	switch c.Mode {
	case domain.ModeFull, domain.ModeKick, domain.ModeBid, domain.ModePeg:
	default:
		return kerr.New(kerr.Config, "MODE must be one of full, kick, bid, peg")
	}
	if c.CheckInterval <= 0 {
		return kerr.New(kerr.Config, "CHECK_INTERVAL must be positive")
	}
	if c.VatBalanceMethod != "dai" && c.VatBalanceMethod != "kusd" {
		return kerr.New(kerr.Config, "VAT_BALANCE_METHOD must be dai or kusd")
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnvDefault(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, kerr.Wrap(kerr.Config, "parse "+key, err)
	}
	return n, nil
}

func parseBigIntEnv(key string, required bool) (*big.Int, error) {
	v := os.Getenv(key)
	if v == "" {
		if required {
			return nil, kerr.New(kerr.Config, key+" is required")
		}
		return nil, nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, kerr.New(kerr.Config, "invalid integer for "+key)
	}
	return n, nil
}

func parseBigIntEnvDefault(key string, def *big.Int) (*big.Int, error) {
	n, err := parseBigIntEnv(key, false)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return def, nil
	}
	return n, nil
}

func ray() *big.Int { return new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil) }
func div100(n *big.Int) *big.Int {
	return new(big.Int).Div(n, big.NewInt(100))
}
