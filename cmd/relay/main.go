// Command relay collects burn attestations from validator signing
// services over QUIC and submits the batch to a bridge node's HTTP
// API.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"X1Bridge/internal/attest"
	"X1Bridge/internal/attnet"
	"X1Bridge/internal/bridge"
	"X1Bridge/internal/logger"
)

// config holds the relay invocation.
type config struct {
	validators string
	bridgeURL  string
	keyPath    string

	asset     uint
	nonce     uint64
	amount    uint64
	user      string
	version   uint64
	threshold uint
	timeout   time.Duration
}

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	set, addrs, err := parseValidators(cfg.validators, uint8(cfg.threshold), cfg.version)
	if err != nil {
		return err
	}

	user, err := parseUser(cfg.user)
	if err != nil {
		return err
	}

	asset, err := bridge.AssetFromByte(uint8(cfg.asset))
	if err != nil {
		return err
	}

	priv, err := loadOrGenerateKey(cfg.keyPath)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	client, err := attnet.NewClient(priv, addrs)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	collector := attest.NewCollector(client, set)

	req, receipt, err := collector.Collect(ctx, asset, cfg.nonce, cfg.amount, user)
	if err != nil {
		return fmt.Errorf("collect attestations: %w", err)
	}

	logger.Info("quorum collected",
		"signers", len(req.Attestations),
		"bitmap", hex.EncodeToString(receipt.Bitmap),
	)

	return submit(cfg.bridgeURL, req)
}

// parseFlags parses command-line flags.
func parseFlags() *config {
	cfg := &config{}

	flag.StringVar(&cfg.validators, "validators", "", "Comma-separated pubkeyhex@host:port validator endpoints")
	flag.StringVar(&cfg.bridgeURL, "bridge", "http://127.0.0.1:8080", "Bridge node HTTP API")
	flag.StringVar(&cfg.keyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.UintVar(&cfg.asset, "asset", 0, "Asset id of the burned token")
	flag.Uint64Var(&cfg.nonce, "nonce", 0, "Burn nonce")
	flag.Uint64Var(&cfg.amount, "amount", 0, "Burned amount")
	flag.StringVar(&cfg.user, "user", "", "Hex account that burned on the source chain")
	flag.Uint64Var(&cfg.version, "set-version", 1, "Validator set version to attest under")
	flag.UintVar(&cfg.threshold, "threshold", 1, "Signature threshold of the set")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "Collection timeout")
	flag.Parse()

	return cfg
}

// parseValidators splits pubkeyhex@addr entries into a roster and an
// address book.
func parseValidators(list string, threshold uint8, version uint64) (bridge.ValidatorSet, map[bridge.PubKey]string, error) {
	set := bridge.ValidatorSet{Version: version, Threshold: threshold}
	addrs := make(map[bridge.PubKey]string)

	if list == "" {
		return set, nil, fmt.Errorf("-validators is required")
	}

	for _, part := range strings.Split(list, ",") {
		keyHex, addr, found := strings.Cut(strings.TrimSpace(part), "@")
		if !found {
			return set, nil, fmt.Errorf("invalid validator entry %q, want pubkeyhex@host:port", part)
		}

		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != 32 {
			return set, nil, fmt.Errorf("invalid validator pubkey %q", keyHex)
		}

		var pk bridge.PubKey
		copy(pk[:], raw)
		set.Validators = append(set.Validators, pk)
		addrs[pk] = addr
	}

	return set, addrs, nil
}

// parseUser decodes the burning account.
func parseUser(value string) (bridge.PubKey, error) {
	var user bridge.PubKey

	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != 32 {
		return user, fmt.Errorf("-user must be 32 hex bytes")
	}
	copy(user[:], raw)

	return user, nil
}

// submit posts the attestation batch to the bridge API.
func submit(bridgeURL string, req *bridge.BurnAttestationRequest) error {
	attestations := make([]map[string]any, 0, len(req.Attestations))
	for _, a := range req.Attestations {
		attestations = append(attestations, map[string]any{
			"validator": hex.EncodeToString(a.Validator[:]),
			"signature": hex.EncodeToString(a.Signature[:]),
			"timestamp": a.Timestamp,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"assetId":             uint8(req.AssetID),
		"burnNonce":           req.BurnNonce,
		"user":                hex.EncodeToString(req.User[:]),
		"amount":              req.Amount,
		"validatorSetVersion": req.ValidatorSetVersion,
		"attestations":        attestations,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := http.Post(bridgeURL+"/attestation", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("submit to bridge: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("bridge rejected submission: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	logger.Info("burn verified", "response", strings.TrimSpace(string(body)))

	return nil
}
