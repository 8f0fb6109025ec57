// Package api is the node's HTTP surface: attestation and proof
// submission, validator set rotation, minting, and monitoring.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"X1Bridge/internal/bridge"
	"X1Bridge/internal/lightclient"
	"X1Bridge/internal/logger"
)

const (
	// maxBodySize is the maximum request body size (1 MB).
	maxBodySize = 1 << 20
)

// Verifier accepts burn evidence.
type Verifier interface {
	SubmitAttestation(req *bridge.BurnAttestationRequest) (*bridge.VerifiedBurn, error)
	SubmitBurnProof(asset bridge.Asset, prover bridge.PubKey, proof *lightclient.BurnProof, sigs *lightclient.PreverifiedBatch) (*bridge.VerifiedBurn, error)
}

// Governance exposes the validator roster and its rotation.
type Governance interface {
	Current() bridge.ValidatorSet
	Rotate(newValidators []bridge.PubKey, newThreshold uint8, approvals []bridge.Attestation) (uint64, error)
}

// Minter consumes verified burns for one asset.
type Minter interface {
	Asset() bridge.Asset
	State() bridge.MintState
	Mint(asset bridge.Asset, nonce uint64, user bridge.PubKey, snapshot bridge.ValidatorSet, feeTargets []bridge.FeeTarget) (uint64, error)
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	verifier Verifier
	gov      Governance
	minters  map[bridge.Asset]Minter
	server   *http.Server
}

// New creates a new HTTP API server.
func New(addr string, verifier Verifier, gov Governance, minters []Minter) *Server {
	byAsset := make(map[bridge.Asset]Minter, len(minters))
	for _, m := range minters {
		byAsset[m.Asset()] = m
	}

	return &Server{
		addr:     addr,
		verifier: verifier,
		gov:      gov,
		minters:  byAsset,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /attestation", s.handleAttestation)
	mux.HandleFunc("POST /proof", s.handleProof)
	mux.HandleFunc("POST /rotate", s.handleRotate)
	mux.HandleFunc("POST /mint", s.handleMint)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// readBody decodes a size-limited JSON request body.
func readBody(r *http.Request, into any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	return json.Unmarshal(body, into)
}

// handleAttestation handles POST /attestation requests.
func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request) {
	var payload attestationPayload
	if err := readBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	req, err := payload.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vb, err := s.verifier.SubmitAttestation(req)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, verifiedBurnView(vb))
}

// handleProof handles POST /proof requests.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	var payload proofPayload
	if err := readBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	asset, prover, proof, records, err := payload.toProof()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sigs, err := lightclient.VerifySignatures(records)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vb, err := s.verifier.SubmitBurnProof(asset, prover, proof, sigs)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, verifiedBurnView(vb))
}

// handleRotate handles POST /rotate requests.
func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var payload rotatePayload
	if err := readBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	validators, threshold, approvals, err := payload.toRotation()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	version, err := s.gov.Rotate(validators, threshold, approvals)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
	})
}

// handleMint handles POST /mint requests. The roster snapshot is taken
// here, once, and pinned for the whole operation.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var payload mintPayload
	if err := readBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	asset, nonce, user, targets, err := payload.toMint()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	minter, ok := s.minters[asset]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no mint controller for asset %d", asset))
		return
	}

	snapshot := s.gov.Current()

	amount, err := minter.Mint(asset, nonce, user, snapshot, targets)
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":  uint8(asset),
		"nonce":  nonce,
		"amount": amount,
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	set := s.gov.Current()

	assets := make(map[string]any, len(s.minters))
	for asset, minter := range s.minters {
		state := minter.State()
		assets[asset.String()] = map[string]any{
			"feePerValidator": state.FeePerValidator,
			"pinnedVersion":   state.ValidatorSetVersion,
			"processedBurns":  state.ProcessedBurns,
			"totalMinted":     state.TotalMinted,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"setVersion": set.Version,
		"validators": len(set.Validators),
		"threshold":  set.Threshold,
		"assets":     assets,
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeBridgeError maps bridge errors onto HTTP status codes. Replay
// errors are conflicts, not bad requests: the client's burn already
// went through.
func writeBridgeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, bridge.ErrBurnAlreadyVerified),
		errors.Is(err, bridge.ErrBurnAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, bridge.ErrInvalidSignature),
		errors.Is(err, bridge.ErrUnknownValidator),
		errors.Is(err, bridge.ErrInsufficientAttestations),
		errors.Is(err, bridge.ErrInsufficientSignatures),
		errors.Is(err, bridge.ErrNotAuthority):
		status = http.StatusForbidden
	case errors.Is(err, bridge.ErrBurnNotVerified):
		status = http.StatusNotFound
	}

	writeError(w, status, err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
