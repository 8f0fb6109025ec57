package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"X1Bridge/internal/bridge"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// AttestAddress is the QUIC attestation service listen address,
	// used when running as a validator.
	AttestAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 signing key.
	PrivateKey ed25519.PrivateKey

	// Genesis indicates this run initializes the bridge state.
	Genesis bool

	// GenesisValidators is the comma-separated hex roster for genesis.
	GenesisValidators string

	// GenesisThreshold is the signature threshold for genesis.
	GenesisThreshold uint

	// Validator runs the attestation signing service.
	Validator bool

	// FeePerValidator overrides the default mint fee at genesis.
	FeePerValidator uint64

	// ExportSnapshot writes a state snapshot to the given path and exits.
	ExportSnapshot string

	// ImportSnapshot seeds storage from a snapshot file and exits.
	ImportSnapshot string

	// LCValidators is a JSON file with the stake-weighted roster for
	// the light client path. Empty disables the path.
	LCValidators string

	// LCSlotURL is an endpoint returning the source chain's current
	// slot as a decimal string.
	LCSlotURL string

	// LCAsset is the single bridged asset the proof path serves.
	LCAsset uint

	// LCFee is the verification fee charged to provers, in units of
	// the fee asset.
	LCFee uint64

	// LCFeeAsset selects which bridged asset's mint the fee is paid in.
	LCFeeAsset uint

	// LCFeeReceiver is the hex account collecting verification fees.
	LCFeeReceiver string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.AttestAddress, "attest", ":9000", "QUIC attestation service address")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.BoolVar(&cfg.Genesis, "genesis", false, "Initialize bridge state")
	flag.StringVar(&cfg.GenesisValidators, "genesis-validators", "", "Comma-separated hex validator pubkeys")
	flag.UintVar(&cfg.GenesisThreshold, "genesis-threshold", 0, "Genesis signature threshold")
	flag.BoolVar(&cfg.Validator, "validator", false, "Run the attestation signing service")
	flag.Uint64Var(&cfg.FeePerValidator, "fee", bridge.DefaultFeePerValidator, "Per-validator mint fee at genesis")
	flag.StringVar(&cfg.ExportSnapshot, "export-snapshot", "", "Write a state snapshot to path and exit")
	flag.StringVar(&cfg.ImportSnapshot, "import-snapshot", "", "Seed storage from a snapshot file and exit")
	flag.StringVar(&cfg.LCValidators, "lc-validators", "", "JSON file with the light client roster (enables the proof path)")
	flag.StringVar(&cfg.LCSlotURL, "lc-slot-url", "", "Endpoint returning the source chain's current slot")
	flag.UintVar(&cfg.LCAsset, "lc-asset", uint(bridge.AssetXENCAT), "Asset the proof path serves")
	flag.Uint64Var(&cfg.LCFee, "lc-fee", 0, "Verification fee charged to provers")
	flag.UintVar(&cfg.LCFeeAsset, "lc-fee-asset", uint(bridge.AssetXENCAT), "Asset the verification fee is paid in")
	flag.StringVar(&cfg.LCFeeReceiver, "lc-fee-receiver", "", "Hex account collecting verification fees")
	flag.Parse()

	return cfg
}

// genesisRoster parses the genesis validator list.
func (cfg *Config) genesisRoster() ([]bridge.PubKey, uint8, error) {
	if cfg.GenesisValidators == "" {
		return nil, 0, fmt.Errorf("genesis requires -genesis-validators")
	}
	if cfg.GenesisThreshold == 0 || cfg.GenesisThreshold > 255 {
		return nil, 0, fmt.Errorf("genesis requires -genesis-threshold in 1..255")
	}

	parts := strings.Split(cfg.GenesisValidators, ",")
	roster := make([]bridge.PubKey, 0, len(parts))

	for _, part := range parts {
		raw, err := hex.DecodeString(strings.TrimSpace(part))
		if err != nil || len(raw) != 32 {
			return nil, 0, fmt.Errorf("invalid validator pubkey %q", part)
		}

		var pk bridge.PubKey
		copy(pk[:], raw)
		roster = append(roster, pk)
	}

	return roster, uint8(cfg.GenesisThreshold), nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s: %w", path, err)
	}

	return priv, nil
}
