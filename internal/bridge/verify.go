package bridge

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"X1Bridge/internal/lightclient"
	"X1Bridge/internal/logger"
	"X1Bridge/internal/token"
)

// ProofFee configures the verification fee charged to the prover on
// the light-client path. Zero amount disables collection.
type ProofFee struct {
	Mint     PubKey
	Receiver PubKey
	Amount   uint64
}

// Verifier turns external burn evidence into VerifiedBurn records. Two
// independent paths feed it: threshold attestations from the trusted
// signer set, and stake-weighted light client proofs. Both end in the
// same create-once store, so a burn verified once can never be
// verified again through either path.
type Verifier struct {
	gov        *Governance
	burns      *BurnStore
	light      *lightclient.Client
	ledger     *token.Ledger
	fee        ProofFee
	proofAsset Asset
	now        func() time.Time
}

// NewVerifier creates a verifier for the trusted-signer path.
func NewVerifier(gov *Governance, burns *BurnStore) *Verifier {
	return &Verifier{gov: gov, burns: burns, now: time.Now}
}

// WithLightClient enables the proof path for exactly one asset. Proof
// evidence carries no asset id, so the binding has to live here: a
// proof accepted for the configured asset can never be replayed under
// another one. The ledger and fee are used to charge the prover; a
// zero fee amount disables the charge.
func (v *Verifier) WithLightClient(light *lightclient.Client, ledger *token.Ledger, fee ProofFee, asset Asset) *Verifier {
	v.light = light
	v.ledger = ledger
	v.fee = fee
	v.proofAsset = asset

	return v
}

// SubmitAttestation verifies a batch of validator attestations for one
// burn and, on success, persists the burn as verified.
//
// The batch is pinned to a validator set version; a version that does
// not match the current roster is rejected outright, which is what
// makes rotation an implicit mass revocation. Any invalid attestation
// fails the whole batch.
func (v *Verifier) SubmitAttestation(req *BurnAttestationRequest) (*VerifiedBurn, error) {
	if _, err := AssetFromByte(byte(req.AssetID)); err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}
	if len(req.Attestations) == 0 {
		return nil, ErrEmptyAttestations
	}

	current := v.gov.Current()
	if req.ValidatorSetVersion != current.Version {
		return nil, fmt.Errorf("%w: request %d, current %d",
			ErrWrongSetVersion, req.ValidatorSetVersion, current.Version)
	}

	message := AttestationMessage(req.AssetID, req.ValidatorSetVersion, req.BurnNonce, req.Amount, req.User)

	seen := make(map[PubKey]struct{}, len(req.Attestations))
	valid := 0

	for _, a := range req.Attestations {
		if _, dup := seen[a.Validator]; dup {
			return nil, fmt.Errorf("%w: %x", ErrDuplicateValidator, a.Validator[:8])
		}
		seen[a.Validator] = struct{}{}

		if !current.Contains(a.Validator) {
			return nil, fmt.Errorf("%w: %x", ErrUnknownValidator, a.Validator[:8])
		}

		if !ed25519.Verify(a.Validator[:], message[:], a.Signature[:]) {
			return nil, fmt.Errorf("%w: attester %x", ErrInvalidSignature, a.Validator[:8])
		}

		valid++
	}

	if valid < int(current.Threshold) {
		return nil, fmt.Errorf("%w: valid %d, need %d", ErrInsufficientAttestations, valid, current.Threshold)
	}

	vb := &VerifiedBurn{
		AssetID:    req.AssetID,
		BurnNonce:  req.BurnNonce,
		User:       req.User,
		Amount:     req.Amount,
		VerifiedAt: v.now().Unix(),
	}

	if err := v.burns.CreateVerified(vb); err != nil {
		return nil, err
	}

	logger.Info("burn verified by attestation",
		"asset", req.AssetID.String(),
		"nonce", req.BurnNonce,
		"amount", req.Amount,
		"attestations", valid,
		"set_version", current.Version,
	)

	return vb, nil
}

// SubmitBurnProof verifies a light client proof for one burn and, on
// success, persists the burn as verified. The prover pays the
// verification fee, charged only after the proof is accepted but
// before the record is created, so a replayed proof still pays.
func (v *Verifier) SubmitBurnProof(asset Asset, prover PubKey, proof *lightclient.BurnProof, sigs *lightclient.PreverifiedBatch) (*VerifiedBurn, error) {
	if v.light == nil {
		return nil, fmt.Errorf("light client path not configured")
	}
	if _, err := AssetFromByte(byte(asset)); err != nil {
		return nil, err
	}
	if asset != v.proofAsset {
		return nil, fmt.Errorf("%w: path serves %s, got %s", ErrAssetNotProvable, v.proofAsset, asset)
	}

	result, err := v.light.VerifyBurnProof(proof, sigs)
	if err != nil {
		return nil, err
	}

	if v.fee.Amount > 0 {
		if err := v.ledger.Transfer(v.fee.Mint, prover, v.fee.Receiver, v.fee.Amount); err != nil {
			return nil, fmt.Errorf("collect verification fee: %w", err)
		}
	}

	vb := &VerifiedBurn{
		AssetID:    asset,
		BurnNonce:  result.BurnNonce,
		User:       result.User,
		Amount:     result.Amount,
		VerifiedAt: v.now().Unix(),
	}

	if err := v.burns.CreateVerified(vb); err != nil {
		return nil, err
	}

	logger.Info("burn verified by proof",
		"asset", asset.String(),
		"nonce", result.BurnNonce,
		"amount", result.Amount,
		"slot", result.Slot,
		"voted_stake", result.VotedStake,
	)

	return vb, nil
}
