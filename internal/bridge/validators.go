package bridge

import (
	"crypto/ed25519"
	"fmt"
	"math"
	"sync"

	"X1Bridge/internal/logger"
	"X1Bridge/internal/storage"
)

// validatorSetKey is the storage key for the current roster.
var validatorSetKey = []byte("vs:current")

// Governance owns the trusted validator roster. The roster is only
// replaced through Rotate, which requires threshold approval from the
// current set; there is no admin override.
type Governance struct {
	mu  sync.RWMutex
	db  *storage.Storage
	set ValidatorSet
}

// InitGovernance creates the genesis roster at version 1.
// Fails if a roster already exists.
func InitGovernance(db *storage.Storage, validators []PubKey, threshold uint8) (*Governance, error) {
	if err := validateRoster(validators, threshold); err != nil {
		return nil, err
	}

	set := ValidatorSet{
		Version:    1,
		Validators: validators,
		Threshold:  threshold,
	}

	if err := db.CreateOnce(validatorSetKey, EncodeValidatorSet(&set)); err != nil {
		return nil, fmt.Errorf("store genesis roster: %w", err)
	}

	logger.Info("validator set initialized",
		"version", set.Version,
		"validators", len(set.Validators),
		"threshold", set.Threshold,
	)

	return &Governance{db: db, set: set}, nil
}

// OpenGovernance loads the existing roster from storage.
func OpenGovernance(db *storage.Storage) (*Governance, error) {
	data, err := db.Get(validatorSetKey)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("no validator set in storage")
	}

	set, err := DecodeValidatorSet(data)
	if err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	return &Governance{db: db, set: *set}, nil
}

// Current returns a copy of the current roster. The copy is the
// operation-pinned snapshot: callers fetch it once at the start of an
// operation and never observe a mid-operation rotation.
func (g *Governance) Current() ValidatorSet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.set.Clone()
}

// Rotate replaces the roster with a new one, approved by at least
// threshold signatures from members of the current set over the
// deterministic rotation message. Returns the new version.
//
// The version bump is the replay defense: every attestation pins the
// version it was signed under, so a rotation invalidates all
// outstanding attestations without explicit revocation.
func (g *Governance) Rotate(newValidators []PubKey, newThreshold uint8, approvals []Attestation) (uint64, error) {
	if err := validateRoster(newValidators, newThreshold); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.verifyApprovals(newValidators, newThreshold, approvals); err != nil {
		return 0, err
	}

	if g.set.Version == math.MaxUint64 {
		return 0, fmt.Errorf("%w: validator set version", ErrOverflow)
	}

	next := ValidatorSet{
		Version:    g.set.Version + 1,
		Validators: newValidators,
		Threshold:  newThreshold,
	}

	if err := g.db.Set(validatorSetKey, EncodeValidatorSet(&next)); err != nil {
		return 0, fmt.Errorf("store rotated roster: %w", err)
	}

	g.set = next

	logger.Info("validator set rotated",
		"version", next.Version,
		"validators", len(next.Validators),
		"threshold", next.Threshold,
	)

	return next.Version, nil
}

// verifyApprovals checks rotation approvals against the current roster.
// Caller holds g.mu.
func (g *Governance) verifyApprovals(newValidators []PubKey, newThreshold uint8, approvals []Attestation) error {
	if len(approvals) == 0 {
		return ErrEmptyAttestations
	}
	if len(approvals) < int(g.set.Threshold) {
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientSignatures, len(approvals), g.set.Threshold)
	}

	message := RotationMessage(g.set.Version, newValidators, newThreshold)

	seen := make(map[PubKey]struct{}, len(approvals))
	verified := 0

	for _, a := range approvals {
		if _, dup := seen[a.Validator]; dup {
			return fmt.Errorf("%w: %x", ErrDuplicateValidator, a.Validator[:8])
		}
		seen[a.Validator] = struct{}{}

		if !g.set.Contains(a.Validator) {
			return fmt.Errorf("%w: %x", ErrUnknownValidator, a.Validator[:8])
		}

		if !ed25519.Verify(a.Validator[:], message[:], a.Signature[:]) {
			return fmt.Errorf("%w: approver %x", ErrInvalidSignature, a.Validator[:8])
		}

		verified++
	}

	if verified < int(g.set.Threshold) {
		return fmt.Errorf("%w: verified %d, need %d", ErrInsufficientSignatures, verified, g.set.Threshold)
	}

	return nil
}

// validateRoster checks structural constraints on a proposed roster.
func validateRoster(validators []PubKey, threshold uint8) error {
	if len(validators) == 0 {
		return ErrEmptyValidatorSet
	}
	if len(validators) > MaxValidators {
		return fmt.Errorf("%w: %d > %d", ErrTooManyValidators, len(validators), MaxValidators)
	}
	if threshold == 0 || int(threshold) > len(validators) {
		return fmt.Errorf("%w: threshold %d, validators %d", ErrInvalidThreshold, threshold, len(validators))
	}

	return nil
}
