package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeebo/blake3"

	"X1Bridge/internal/api"
	"X1Bridge/internal/attest"
	"X1Bridge/internal/attnet"
	"X1Bridge/internal/bridge"
	"X1Bridge/internal/logger"
	"X1Bridge/internal/snapshot"
	"X1Bridge/internal/storage"
	"X1Bridge/internal/token"
)

// bridgedAssets is every asset this node runs a mint controller for.
var bridgedAssets = []bridge.Asset{bridge.AssetXENCAT, bridge.AssetDGN}

// Node wires storage, governance, the verifier, the per-asset mint
// controllers, and the external surfaces together.
type Node struct {
	cfg *Config

	db          *storage.Storage
	gov         *bridge.Governance
	ledger      *token.Ledger
	burns       *bridge.BurnStore
	verifier    *bridge.Verifier
	controllers []*bridge.Controller

	api       *api.Server
	attServer *attnet.Server
}

// NewNode builds a node from configuration, initializing genesis state
// when requested.
func NewNode(cfg *Config) (*Node, error) {
	db, err := storage.New(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	n := &Node{
		cfg:    cfg,
		db:     db,
		ledger: token.NewLedger(db),
		burns:  bridge.NewBurnStore(db),
	}

	if cfg.Genesis {
		err = n.initGenesis()
	} else {
		err = n.open()
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	n.verifier = bridge.NewVerifier(n.gov, n.burns)
	if err := n.setupLightClient(); err != nil {
		db.Close()
		return nil, err
	}

	minters := make([]api.Minter, len(n.controllers))
	for i, ctrl := range n.controllers {
		minters[i] = ctrl
	}
	n.api = api.New(cfg.HTTPAddress, n.verifier, n.gov, minters)

	return n, nil
}

// mintID derives the deterministic token mint id for an asset.
func mintID(asset bridge.Asset) bridge.PubKey {
	return blake3.Sum256([]byte{'x', '1', 'b', 'r', 'i', 'd', 'g', 'e', '-', 'm', 'i', 'n', 't', byte(asset)})
}

// initGenesis creates the roster, token mints, and mint controllers.
func (n *Node) initGenesis() error {
	roster, threshold, err := n.cfg.genesisRoster()
	if err != nil {
		return err
	}

	n.gov, err = bridge.InitGovernance(n.db, roster, threshold)
	if err != nil {
		return fmt.Errorf("init governance: %w", err)
	}

	var authority bridge.PubKey
	copy(authority[:], n.cfg.PrivateKey.Public().(ed25519.PublicKey))

	for _, asset := range bridgedAssets {
		mint := mintID(asset)

		if err := n.ledger.CreateMint(mint, authority, token.Decimals); err != nil {
			return fmt.Errorf("create %s mint: %w", asset, err)
		}

		ctrl, err := bridge.InitController(n.db, n.ledger, n.burns, asset, authority, mint, n.gov.Current().Version)
		if err != nil {
			return fmt.Errorf("init %s controller: %w", asset, err)
		}

		if n.cfg.FeePerValidator != bridge.DefaultFeePerValidator {
			if err := ctrl.SetFee(authority, n.cfg.FeePerValidator); err != nil {
				return fmt.Errorf("set %s fee: %w", asset, err)
			}
		}

		n.controllers = append(n.controllers, ctrl)
	}

	logger.Info("genesis initialized",
		"validators", len(roster),
		"threshold", threshold,
		"assets", len(bridgedAssets),
	)

	return nil
}

// open loads existing bridge state.
func (n *Node) open() error {
	var err error

	n.gov, err = bridge.OpenGovernance(n.db)
	if err != nil {
		return fmt.Errorf("open governance: %w", err)
	}

	for _, asset := range bridgedAssets {
		ctrl, err := bridge.OpenController(n.db, n.ledger, n.burns, asset)
		if err != nil {
			return fmt.Errorf("open %s controller: %w", asset, err)
		}

		n.controllers = append(n.controllers, ctrl)
	}

	return nil
}

// Run starts the services and blocks until interrupted.
func (n *Node) Run() error {
	defer n.db.Close()

	if n.cfg.Validator {
		signer, err := attest.NewSigner(n.cfg.PrivateKey, nil)
		if err != nil {
			return fmt.Errorf("create signer: %w", err)
		}

		n.attServer, err = attnet.NewServer(n.cfg.PrivateKey, n.cfg.AttestAddress, signer.Handle)
		if err != nil {
			return fmt.Errorf("create attestation server: %w", err)
		}
		if err := n.attServer.Start(); err != nil {
			return fmt.Errorf("start attestation server: %w", err)
		}
		defer n.attServer.Close()
	}

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	n.logMintEvents()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")

	return n.api.Stop()
}

// logMintEvents drains each controller's event stream into the log.
func (n *Node) logMintEvents() {
	for _, ctrl := range n.controllers {
		go func(ctrl *bridge.Controller) {
			for event := range ctrl.Events() {
				logger.Info("mint event",
					"asset", event.AssetID.String(),
					"nonce", event.Nonce,
					"amount", event.Amount,
				)
			}
		}(ctrl)
	}
}

// runSnapshot handles the export/import one-shot modes.
func runSnapshot(cfg *Config) error {
	db, err := storage.New(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	if cfg.ExportSnapshot != "" {
		file, err := os.Create(cfg.ExportSnapshot)
		if err != nil {
			return fmt.Errorf("create snapshot file: %w", err)
		}
		defer file.Close()

		return snapshot.Export(db, file)
	}

	file, err := os.Open(cfg.ImportSnapshot)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	return snapshot.Import(db, file)
}
