package bridge

import "fmt"

const (
	// MaxValidators is the maximum size of the trusted signer roster.
	MaxValidators = 10

	// SignatureSize is the size of a validator attestation signature.
	SignatureSize = 64

	// DefaultFeePerValidator is the default per-validator mint fee
	// (0.01 native units with 6 decimals).
	DefaultFeePerValidator = 10_000_000
)

// PubKey is a 32-byte Ed25519 public key identifying a validator or user.
type PubKey [32]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

// Asset is the permanent small-integer id of a bridged token.
// Ids are never reused or reassigned once deployed.
type Asset uint8

const (
	// AssetXENCAT is the XENCAT token.
	AssetXENCAT Asset = 1

	// AssetDGN is the DGN token.
	AssetDGN Asset = 2
)

// AssetFromByte validates and converts a raw asset id.
func AssetFromByte(b uint8) (Asset, error) {
	switch Asset(b) {
	case AssetXENCAT, AssetDGN:
		return Asset(b), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidAsset, b)
	}
}

// String returns the asset's symbol.
func (a Asset) String() string {
	switch a {
	case AssetXENCAT:
		return "XENCAT"
	case AssetDGN:
		return "DGN"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// ValidatorSet is the trusted signer roster at a specific version.
// Rotations create a new version; a set is never mutated in place.
type ValidatorSet struct {
	Version    uint64   // Version increases by one on every rotation
	Validators []PubKey // Validators are the trusted signing keys, order-preserving
	Threshold  uint8    // Threshold is the minimum number of valid signatures
}

// Contains reports whether the pubkey is in the roster.
func (vs *ValidatorSet) Contains(pk PubKey) bool {
	for _, v := range vs.Validators {
		if v == pk {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the set.
func (vs *ValidatorSet) Clone() ValidatorSet {
	out := ValidatorSet{
		Version:    vs.Version,
		Validators: make([]PubKey, len(vs.Validators)),
		Threshold:  vs.Threshold,
	}
	copy(out.Validators, vs.Validators)

	return out
}

// Attestation is a single validator's signed claim that a burn occurred.
type Attestation struct {
	Validator PubKey    // Validator is the signer's public key
	Signature Signature // Signature is over the canonical attestation message
	Timestamp int64     // Timestamp is when the validator verified the burn
}

// BurnAttestationRequest is a user-submitted batch of validator
// attestations for one burn on the source ledger.
type BurnAttestationRequest struct {
	AssetID             Asset
	BurnNonce           uint64
	User                PubKey
	Amount              uint64
	ValidatorSetVersion uint64 // must equal the current roster version
	Attestations        []Attestation
}

// VerifiedBurn records a successful attestation verification.
// It is the join point of the two-phase protocol: created by the
// verifier, consumed exactly once by the mint controller.
type VerifiedBurn struct {
	AssetID    Asset
	BurnNonce  uint64
	User       PubKey
	Amount     uint64
	VerifiedAt int64
	Processed  bool // flips false→true exactly once
}

// ProcessedBurn is the create-once replay guard written at mint time.
type ProcessedBurn struct {
	AssetID     Asset
	Nonce       uint64
	User        PubKey
	Amount      uint64
	ProcessedAt int64
}

// MintState holds per-asset mint controller state.
type MintState struct {
	Authority           PubKey // Authority may change fee settings, not the roster
	Mint                PubKey // Mint is the destination token id
	FeePerValidator     uint64
	ValidatorSetVersion uint64 // roster version pinned for fee distribution
	ProcessedBurns      uint64 // saturating counter
	TotalMinted         uint64 // saturating counter
}

// MintEvent is emitted once per completed mint, in completion order.
type MintEvent struct {
	AssetID Asset
	Nonce   uint64
	User    PubKey
	Amount  uint64
}

// FeeTarget is a caller-supplied account that receives one validator's fee.
// Targets must be listed in roster order, one per validator.
type FeeTarget struct {
	Account  PubKey
	Writable bool
}
