package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHardhatArtifact = `{
	"contractName": "Pool",
	"abi": [
		{"type": "function", "name": "liquidationCall", "inputs": [], "outputs": []}
	],
	"bytecode": "0x"
}`

func TestLoadABIFromHardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Pool.json")
	require.NoError(t, os.WriteFile(path, []byte(testHardhatArtifact), 0o644))

	parsed, err := LoadABIFromHardhatArtifact(path)
	require.NoError(t, err)
	_, ok := parsed.Methods["liquidationCall"]
	assert.True(t, ok)
}

func TestLoadABIFromHardhatArtifact_MissingFile(t *testing.T) {
	_, err := LoadABIFromHardhatArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadABIFromHardhatArtifact_NoABIField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NoABI.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"contractName": "Empty"}`), 0o644))

	_, err := LoadABIFromHardhatArtifact(path)
	assert.Error(t, err)
}

func TestLoadABIFromHardhatArtifact_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	_, err := LoadABIFromHardhatArtifact(path)
	assert.Error(t, err)
}
