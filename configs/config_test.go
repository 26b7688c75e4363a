package configs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearKeeperEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PRIVATE_KEY", "RPC_URL", "CHAIN_ID", "MODE", "CHECK_INTERVAL",
		"MIN_PROFIT_PERCENTAGE", "MAX_GAS_PRICE", "GAS_LIMIT", "GAS_PRICE",
		"MAX_COLLATERAL_PER_AUCTION", "EMERGENCY_STOP", "VAT_BALANCE_METHOD",
		"PEG_UPPER_LIMIT", "PEG_LOWER_LIMIT", "MAX_ARB_AMOUNT",
		"MIN_ARB_PROFIT_PERCENTAGE", "ARB_SLIPPAGE_TOLERANCE", "ARB_COOLDOWN_MS",
		"MAX_TRADE_PERCENT_OF_POOL", "FLAP_MIN_INITIAL_BID", "KEEPER_CONFIG",
		"DATABASE_DSN", "HEALTH_ADDR",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func setMinimalValidEnv(t *testing.T) {
	t.Helper()
	os.Setenv("PRIVATE_KEY", "0xdeadbeef")
	os.Setenv("RPC_URL", "http://localhost:8545")
	os.Setenv("CHAIN_ID", "1")
	os.Setenv("MAX_GAS_PRICE", "100000000000")
	os.Setenv("GAS_PRICE", "50000000000")
	os.Setenv("MAX_COLLATERAL_PER_AUCTION", "1000000000000000000000")
	os.Setenv("MAX_ARB_AMOUNT", "500000000000000000000")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearKeeperEnv(t)
	setMinimalValidEnv(t)
	defer clearKeeperEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, "full", cfg.Mode)
	assert.EqualValues(t, 30_000_000_000, cfg.CheckInterval)
	assert.Equal(t, "kusd", cfg.VatBalanceMethod)
	assert.Equal(t, uint64(500_000), cfg.GasLimit)
}

func TestLoadRejectsMissingPrivateKey(t *testing.T) {
	clearKeeperEnv(t)
	setMinimalValidEnv(t)
	os.Unsetenv("PRIVATE_KEY")
	defer clearKeeperEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	clearKeeperEnv(t)
	setMinimalValidEnv(t)
	os.Setenv("MODE", "bogus")
	defer clearKeeperEnv(t)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsEachValidMode(t *testing.T) {
	for _, mode := range []string{"full", "kick", "bid", "peg"} {
		clearKeeperEnv(t)
		setMinimalValidEnv(t)
		os.Setenv("MODE", mode)

		cfg, err := Load()
		require.NoError(t, err)
		assert.EqualValues(t, mode, cfg.Mode)
	}
	clearKeeperEnv(t)
}
