//go:build integration

// These tests hit a live RPC endpoint and are gated by env vars loaded from
// env/.env.test.local (TestDecodeTransaction) or env/.env.globalstate.local
// (TestCallBalanceOf); each is skipped unless its file exists and the
// required vars are set.
package contractclient

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/kusd-keeper/keeper/pkg/util"
)

func TestDecodeTransaction(t *testing.T) {
	if err := godotenv.Load("env/.env.test.local"); err != nil {
		t.Skipf("no env/.env.test.local, skipping: %v", err)
	}

	contractAddr := os.Getenv("CONTRACT_ADDR")
	rpcURL := os.Getenv("RPC_URL")
	txHash := os.Getenv("TX_HASH")
	txData := os.Getenv("TX_DATA")
	path := os.Getenv("ABI_PATH")
	if contractAddr == "" || rpcURL == "" || path == "" || (txHash == "" && txData == "") {
		t.Skip("required env vars not set")
	}

	abi, err := util.LoadABIFromHardhatArtifact(path)
	if err != nil {
		t.Fatal(err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		t.Fatal(err)
	}
	cc := NewContractClient(client, common.HexToAddress(contractAddr), abi)

	var txDataBytes []byte
	if txData != "" {
		txDataBytes = util.Hex2Bytes(txData)
	} else {
		txDataBytes, err = cc.TransactionData(common.HexToHash(txHash))
		if err != nil {
			t.Fatal(err)
		}
	}

	decoded, err := cc.DecodeTransaction(txDataBytes)
	if err != nil {
		t.Fatal(err)
	}

	jsonData, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("decoded transaction:\n%s", string(jsonData))
}

// TestCallBalanceOf exercises Call against a live ERC-20, standing in for
// the Vat/Dog/Clipper read calls the monitors make in production.
func TestCallBalanceOf(t *testing.T) {
	if err := godotenv.Load("env/.env.globalstate.local"); err != nil {
		t.Skipf("no env/.env.globalstate.local, skipping: %v", err)
	}

	contractAddr := os.Getenv("CONTRACT_ADDR")
	holderAddr := os.Getenv("HOLDER_ADDR")
	rpcURL := os.Getenv("RPC_URL")
	path := os.Getenv("ABI_PATH")
	if contractAddr == "" || rpcURL == "" || path == "" || holderAddr == "" {
		t.Skip("required env vars not set")
	}

	abi, err := util.LoadABIFromHardhatArtifact(path)
	if err != nil {
		t.Fatal(err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		t.Fatal(err)
	}
	cc := NewContractClient(client, common.HexToAddress(contractAddr), abi)

	holder := common.HexToAddress(holderAddr)
	outputs, err := cc.Call(&holder, "balanceOf", holder)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("balanceOf outputs: %v", outputs)
}
