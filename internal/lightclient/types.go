// Package lightclient verifies burn proofs against a stake-weighted
// validator set: native signature votes over a block hash, plus a
// Merkle inclusion proof tying the burn record to that block's state
// root. It is the trust-minimized alternative to the trusted-signer
// attestation path.
package lightclient

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
)

// Roster and proof shape limits.
const (
	MinValidators = 3
	MaxValidators = 20

	// FinalitySlots is how far behind the current slot a proven block
	// must be before it is accepted.
	FinalitySlots = 32

	// MaxProofDepth bounds Merkle proof length.
	MaxProofDepth = 32

	// DefaultMinStakeBasisPoints is the sampled-mode quorum floor (90%).
	DefaultMinStakeBasisPoints = 9000
)

// BurnRecordSize is the encoded burn record length:
// user(32) + amount(8) + nonce(8) + timestamp(8) + record_hash(32) + bump(1).
const BurnRecordSize = 89

var (
	ErrZeroAmount        = errors.New("lightclient: claimed amount must be nonzero")
	ErrZeroStateRoot     = errors.New("lightclient: state root must be nonzero")
	ErrEmptyProof        = errors.New("lightclient: empty merkle proof")
	ErrTooFewValidators  = errors.New("lightclient: too few validators")
	ErrTooManyValidators = errors.New("lightclient: too many validators")
	ErrNotFinal          = errors.New("lightclient: block not finalized")
	ErrUnknownVoter      = errors.New("lightclient: vote from unknown validator")
	ErrDuplicateVote     = errors.New("lightclient: duplicate validator vote")
	ErrVoteNotVerified   = errors.New("lightclient: vote signature not in verified batch")
	ErrInsufficientStake = errors.New("lightclient: voted stake below consensus threshold")
	ErrProofTooDeep      = errors.New("lightclient: merkle proof exceeds depth limit")
	ErrRootMismatch      = errors.New("lightclient: merkle root does not match state root")
	ErrClaimMismatch     = errors.New("lightclient: claim does not match proven burn record")
	ErrBadRecord         = errors.New("lightclient: malformed burn record")
	ErrOverflow          = errors.New("lightclient: arithmetic overflow")
	ErrBadSignature      = errors.New("lightclient: signature verification failed")
)

// ValidatorInfo is one roster entry with its stake weight.
type ValidatorInfo struct {
	Identity [32]byte
	Stake    uint64
}

// ValidatorConfig is the stake-weighted roster a proof is checked
// against. The caller is responsible for keeping it in sync with the
// source chain's epoch schedule.
type ValidatorConfig struct {
	Validators []ValidatorInfo
}

// Find returns the roster entry for an identity, or nil.
func (c *ValidatorConfig) Find(identity [32]byte) *ValidatorInfo {
	for i := range c.Validators {
		if c.Validators[i].Identity == identity {
			return &c.Validators[i]
		}
	}

	return nil
}

// TotalStake sums all stake with checked arithmetic.
func (c *ValidatorConfig) TotalStake() (uint64, error) {
	var total uint64
	for _, v := range c.Validators {
		if total+v.Stake < total {
			return 0, fmt.Errorf("%w: total stake", ErrOverflow)
		}
		total += v.Stake
	}

	return total, nil
}

// Policy tunes proof acceptance. The zero value is not usable; start
// from DefaultPolicy.
type Policy struct {
	MinValidators       int
	MaxValidators       int
	FinalitySlots       uint64
	MaxProofDepth       int
	MinStakeBasisPoints uint64

	// Sampled switches the quorum rule from the BFT two-thirds
	// threshold to the basis-point floor, for rosters that are a
	// stake-weighted sample rather than the full set.
	Sampled bool
}

// DefaultPolicy returns the standard acceptance policy.
func DefaultPolicy() Policy {
	return Policy{
		MinValidators:       MinValidators,
		MaxValidators:       MaxValidators,
		FinalitySlots:       FinalitySlots,
		MaxProofDepth:       MaxProofDepth,
		MinStakeBasisPoints: DefaultMinStakeBasisPoints,
	}
}

// ValidatorVote is one validator's signature over the vote message for
// a block.
type ValidatorVote struct {
	Validator [32]byte
	Signature [64]byte
}

// BurnProof is a complete claim that a burn happened on the source
// chain: the block it landed in, votes finalizing that block, and a
// Merkle path from the burn record to the block's state root.
type BurnProof struct {
	BurnNonce      uint64
	User           [32]byte
	Amount         uint64
	Slot           uint64
	BlockHash      [32]byte
	StateRoot      [32]byte
	BurnRecordData []byte
	MerkleProof    [][32]byte
	Votes          []ValidatorVote
}

// VerificationResult is the accepted claim extracted from a proof.
type VerificationResult struct {
	BurnNonce  uint64
	User       [32]byte
	Amount     uint64
	Slot       uint64
	VotedStake uint64
	TotalStake uint64
}

// BurnRecord is the decoded on-chain burn record proven by the Merkle
// path.
type BurnRecord struct {
	User       [32]byte
	Amount     uint64
	Nonce      uint64
	Timestamp  uint64
	RecordHash [32]byte
	Bump       uint8
}

// DecodeBurnRecord decodes the little-endian burn record layout.
func DecodeBurnRecord(data []byte) (*BurnRecord, error) {
	if len(data) != BurnRecordSize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrBadRecord, len(data), BurnRecordSize)
	}

	r := &BurnRecord{
		Amount:    binary.LittleEndian.Uint64(data[32:40]),
		Nonce:     binary.LittleEndian.Uint64(data[40:48]),
		Timestamp: binary.LittleEndian.Uint64(data[48:56]),
		Bump:      data[88],
	}
	copy(r.User[:], data[0:32])
	copy(r.RecordHash[:], data[56:88])

	return r, nil
}

// EncodeBurnRecord encodes a burn record in its on-chain layout.
func EncodeBurnRecord(r *BurnRecord) []byte {
	buf := make([]byte, 0, BurnRecordSize)
	buf = append(buf, r.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, r.Nonce)
	buf = binary.LittleEndian.AppendUint64(buf, r.Timestamp)
	buf = append(buf, r.RecordHash[:]...)
	buf = append(buf, r.Bump)

	return buf
}

// SignatureRecord is one entry of the signature verification batch a
// proof arrives with. Votes only count if an identical record, byte
// for byte, exists in the verified batch.
type SignatureRecord struct {
	PubKey    [32]byte
	Message   [32]byte
	Signature [64]byte
}

// PreverifiedBatch is a set of signature records that have each passed
// ed25519 verification.
type PreverifiedBatch struct {
	records map[SignatureRecord]struct{}
}

// VerifySignatures checks every record with ed25519 and returns the
// batch. One bad signature fails the whole batch.
func VerifySignatures(records []SignatureRecord) (*PreverifiedBatch, error) {
	batch := &PreverifiedBatch{records: make(map[SignatureRecord]struct{}, len(records))}

	for i, r := range records {
		if !ed25519.Verify(r.PubKey[:], r.Message[:], r.Signature[:]) {
			return nil, fmt.Errorf("%w: record %d", ErrBadSignature, i)
		}
		batch.records[r] = struct{}{}
	}

	return batch, nil
}

// Contains reports whether the exact (pubkey, message, signature)
// triple was verified.
func (b *PreverifiedBatch) Contains(pubkey, message [32]byte, signature [64]byte) bool {
	_, ok := b.records[SignatureRecord{PubKey: pubkey, Message: message, Signature: signature}]

	return ok
}
