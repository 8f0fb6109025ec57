package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"X1Bridge/internal/bridge"
	"X1Bridge/internal/lightclient"
	"X1Bridge/internal/logger"
)

// lcRosterEntry is one line of the light client roster file.
type lcRosterEntry struct {
	Identity string `json:"identity"`
	Stake    uint64 `json:"stake"`
}

// loadLightClientConfig parses the JSON roster file.
func loadLightClientConfig(path string) (*lightclient.ValidatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var entries []lcRosterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}

	config := &lightclient.ValidatorConfig{}
	for i, e := range entries {
		raw, err := hex.DecodeString(e.Identity)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("roster entry %d: invalid identity", i)
		}

		var identity [32]byte
		copy(identity[:], raw)
		config.Validators = append(config.Validators, lightclient.ValidatorInfo{
			Identity: identity,
			Stake:    e.Stake,
		})
	}

	return config, nil
}

// httpSlotSource polls an endpoint for the source chain's current
// slot. Failures report slot 0, which makes every finality check fail
// closed until the endpoint recovers.
func httpSlotSource(url string) func() uint64 {
	client := &http.Client{Timeout: 5 * time.Second}

	return func() uint64 {
		resp, err := client.Get(url)
		if err != nil {
			logger.Warn("slot source unreachable", "url", url, "error", err)
			return 0
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
		if err != nil {
			logger.Warn("slot source read failed", "error", err)
			return 0
		}

		slot, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
		if err != nil {
			logger.Warn("slot source returned garbage", "body", string(body))
			return 0
		}

		return slot
	}
}

// setupLightClient wires the proof path into the verifier when
// configured.
func (n *Node) setupLightClient() error {
	if n.cfg.LCValidators == "" {
		return nil
	}
	if n.cfg.LCSlotURL == "" {
		return fmt.Errorf("-lc-validators requires -lc-slot-url")
	}

	config, err := loadLightClientConfig(n.cfg.LCValidators)
	if err != nil {
		return err
	}

	client := lightclient.NewClient(config, lightclient.DefaultPolicy(), httpSlotSource(n.cfg.LCSlotURL))

	proofAsset, err := bridge.AssetFromByte(uint8(n.cfg.LCAsset))
	if err != nil {
		return fmt.Errorf("-lc-asset: %w", err)
	}

	var fee bridge.ProofFee
	if n.cfg.LCFee > 0 {
		feeAsset, err := bridge.AssetFromByte(uint8(n.cfg.LCFeeAsset))
		if err != nil {
			return fmt.Errorf("-lc-fee-asset: %w", err)
		}

		receiver, err := hex.DecodeString(n.cfg.LCFeeReceiver)
		if err != nil || len(receiver) != 32 {
			return fmt.Errorf("-lc-fee-receiver must be 32 hex bytes")
		}

		fee.Mint = mintID(feeAsset)
		fee.Amount = n.cfg.LCFee
		copy(fee.Receiver[:], receiver)
	}

	n.verifier.WithLightClient(client, n.ledger, fee, proofAsset)

	logger.Info("light client path enabled",
		"asset", proofAsset.String(),
		"validators", len(config.Validators),
		"fee", n.cfg.LCFee,
	)

	return nil
}
