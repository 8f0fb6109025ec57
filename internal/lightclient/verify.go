package lightclient

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/zeebo/blake3"

	"X1Bridge/internal/logger"
)

// Client verifies burn proofs against a roster and policy. The slot
// source reports the source chain's current slot for finality checks.
type Client struct {
	config *ValidatorConfig
	policy Policy
	slot   func() uint64
}

// NewClient creates a verifying client.
func NewClient(config *ValidatorConfig, policy Policy, slot func() uint64) *Client {
	return &Client{config: config, policy: policy, slot: slot}
}

// Config returns the roster the client verifies against.
func (c *Client) Config() *ValidatorConfig {
	return c.config
}

// VoteMessage is what validators sign to finalize a block:
// blake3(block_hash || slot LE).
func VoteMessage(blockHash [32]byte, slot uint64) [32]byte {
	buf := make([]byte, 0, 40)
	buf = append(buf, blockHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, slot)

	return blake3.Sum256(buf)
}

// ConsensusThreshold returns the BFT supermajority bound
// ceil(total*2/3) with checked arithmetic.
func ConsensusThreshold(total uint64) (uint64, error) {
	hi, doubled := bits.Mul64(total, 2)
	if hi != 0 {
		return 0, fmt.Errorf("%w: consensus threshold", ErrOverflow)
	}
	if doubled+2 < doubled {
		return 0, fmt.Errorf("%w: consensus threshold", ErrOverflow)
	}

	return (doubled + 2) / 3, nil
}

// StakeThreshold returns total * bps / 10000 without intermediate
// overflow. Basis points above 100% clamp to the full total.
func StakeThreshold(total, bps uint64) uint64 {
	if bps >= 10_000 {
		return total
	}

	hi, lo := bits.Mul64(total, bps)
	quo, _ := bits.Div64(hi, lo, 10_000)

	return quo
}

// VerifyBurnProof runs the full acceptance pipeline on a proof. Votes
// only count when their exact signature triple appears in the
// preverified batch. Returns the accepted claim or the first failure.
func (c *Client) VerifyBurnProof(proof *BurnProof, sigs *PreverifiedBatch) (*VerificationResult, error) {
	if proof.Amount == 0 {
		return nil, ErrZeroAmount
	}
	if proof.StateRoot == ([32]byte{}) {
		return nil, ErrZeroStateRoot
	}
	if len(proof.MerkleProof) == 0 {
		return nil, ErrEmptyProof
	}

	if len(c.config.Validators) < c.policy.MinValidators {
		return nil, fmt.Errorf("%w: %d < %d", ErrTooFewValidators, len(c.config.Validators), c.policy.MinValidators)
	}
	if len(c.config.Validators) > c.policy.MaxValidators {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyValidators, len(c.config.Validators), c.policy.MaxValidators)
	}

	total, err := c.config.TotalStake()
	if err != nil {
		return nil, err
	}

	if err := c.checkFinality(proof.Slot); err != nil {
		return nil, err
	}

	voted, err := c.countVotes(proof, sigs)
	if err != nil {
		return nil, err
	}

	required, err := c.requiredStake(total)
	if err != nil {
		return nil, err
	}
	if voted < required {
		return nil, fmt.Errorf("%w: voted %d, need %d of %d", ErrInsufficientStake, voted, required, total)
	}

	if err := VerifyInclusion(proof.BurnRecordData, proof.MerkleProof, proof.StateRoot, c.policy.MaxProofDepth); err != nil {
		return nil, err
	}

	record, err := DecodeBurnRecord(proof.BurnRecordData)
	if err != nil {
		return nil, err
	}

	// The claim must match the proven record exactly. The claim is what
	// the bridge acts on, the record is what the chain committed to.
	if record.User != proof.User || record.Amount != proof.Amount || record.Nonce != proof.BurnNonce {
		return nil, ErrClaimMismatch
	}

	logger.Debug("burn proof accepted",
		"nonce", proof.BurnNonce,
		"slot", proof.Slot,
		"voted_stake", voted,
		"total_stake", total,
	)

	return &VerificationResult{
		BurnNonce:  proof.BurnNonce,
		User:       proof.User,
		Amount:     proof.Amount,
		Slot:       proof.Slot,
		VotedStake: voted,
		TotalStake: total,
	}, nil
}

// checkFinality requires the proven slot to be strictly in the past
// and at least the finality window behind the current slot.
func (c *Client) checkFinality(slot uint64) error {
	current := c.slot()

	if slot >= current {
		return fmt.Errorf("%w: slot %d, current %d", ErrNotFinal, slot, current)
	}
	if current-slot < c.policy.FinalitySlots {
		return fmt.Errorf("%w: slot %d only %d behind current %d", ErrNotFinal, slot, current-slot, current)
	}

	return nil
}

// countVotes tallies stake from valid votes. Unknown voters,
// duplicates, and votes without a matching verified signature all fail
// the proof rather than being skipped.
func (c *Client) countVotes(proof *BurnProof, sigs *PreverifiedBatch) (uint64, error) {
	message := VoteMessage(proof.BlockHash, proof.Slot)

	seen := make(map[[32]byte]struct{}, len(proof.Votes))
	var voted uint64

	for _, vote := range proof.Votes {
		if _, dup := seen[vote.Validator]; dup {
			return 0, fmt.Errorf("%w: %x", ErrDuplicateVote, vote.Validator[:8])
		}
		seen[vote.Validator] = struct{}{}

		info := c.config.Find(vote.Validator)
		if info == nil {
			return 0, fmt.Errorf("%w: %x", ErrUnknownVoter, vote.Validator[:8])
		}

		if !sigs.Contains(vote.Validator, message, vote.Signature) {
			return 0, fmt.Errorf("%w: %x", ErrVoteNotVerified, vote.Validator[:8])
		}

		if voted+info.Stake < voted {
			return 0, fmt.Errorf("%w: voted stake", ErrOverflow)
		}
		voted += info.Stake
	}

	return voted, nil
}

// requiredStake returns the quorum for the configured mode.
func (c *Client) requiredStake(total uint64) (uint64, error) {
	if c.policy.Sampled {
		return StakeThreshold(total, c.policy.MinStakeBasisPoints), nil
	}

	return ConsensusThreshold(total)
}
