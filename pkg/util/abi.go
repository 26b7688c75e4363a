// Package util holds small, dependency-light helpers shared across the
// chain-facing packages: ABI loading and hex/byte conversions.
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact this
// keeper cares about: the "abi" field, everything else is ignored.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABI parses a bare ABI JSON file (an array of method/event entries).
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi file %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi file %s: %w", path, err)
	}
	return parsed, nil
}

// LoadABIFromHardhatArtifact parses the "abi" field out of a full Hardhat or
// Foundry build artifact (which also carries bytecode, source map, etc.).
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact %s has no abi field", path)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi in artifact %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes decodes a 0x-prefixed (or bare) hex string into bytes, returning
// nil on malformed input rather than panicking.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
