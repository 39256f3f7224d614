package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact is the subset of a Hardhat/Foundry build artifact this
// loader needs: everything else (bytecode, source maps) is ignored.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat-style build artifact JSON file
// and parses its "abi" field, matching the artifact layout the chain
// provider adapter's ABI files are authored in.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: read abi artifact: %w", err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("util: parse abi artifact: %w", err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("util: artifact %s has no abi field", path)
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("util: decode abi json: %w", err)
	}
	return parsed, nil
}
