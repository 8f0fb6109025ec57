package api

import (
	"encoding/hex"
	"fmt"

	"X1Bridge/internal/bridge"
	"X1Bridge/internal/lightclient"
)

// Wire payloads. Fixed-size byte fields travel as hex strings.

type attestationEntry struct {
	Validator string `json:"validator"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

type attestationPayload struct {
	AssetID             uint8              `json:"assetId"`
	BurnNonce           uint64             `json:"burnNonce"`
	User                string             `json:"user"`
	Amount              uint64             `json:"amount"`
	ValidatorSetVersion uint64             `json:"validatorSetVersion"`
	Attestations        []attestationEntry `json:"attestations"`
}

type votePayload struct {
	Validator string `json:"validator"`
	Signature string `json:"signature"`
}

type signatureRecordPayload struct {
	PubKey    string `json:"pubKey"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type proofPayload struct {
	AssetID          uint8                    `json:"assetId"`
	Prover           string                   `json:"prover"`
	BurnNonce        uint64                   `json:"burnNonce"`
	User             string                   `json:"user"`
	Amount           uint64                   `json:"amount"`
	Slot             uint64                   `json:"slot"`
	BlockHash        string                   `json:"blockHash"`
	StateRoot        string                   `json:"stateRoot"`
	BurnRecordData   string                   `json:"burnRecordData"`
	MerkleProof      []string                 `json:"merkleProof"`
	Votes            []votePayload            `json:"votes"`
	SignatureRecords []signatureRecordPayload `json:"signatureRecords"`
}

type rotatePayload struct {
	Validators []string           `json:"validators"`
	Threshold  uint8              `json:"threshold"`
	Approvals  []attestationEntry `json:"approvals"`
}

type feeTargetPayload struct {
	Account  string `json:"account"`
	Writable bool   `json:"writable"`
}

type mintPayload struct {
	AssetID    uint8              `json:"assetId"`
	BurnNonce  uint64             `json:"burnNonce"`
	User       string             `json:"user"`
	FeeTargets []feeTargetPayload `json:"feeTargets"`
}

// decode32 parses a 32-byte hex field.
func decode32(field, value string) ([32]byte, error) {
	var out [32]byte

	raw, err := hex.DecodeString(value)
	if err != nil {
		return out, fmt.Errorf("%s: invalid hex", field)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s: length %d, want 32", field, len(raw))
	}
	copy(out[:], raw)

	return out, nil
}

// decode64 parses a 64-byte hex field.
func decode64(field, value string) ([64]byte, error) {
	var out [64]byte

	raw, err := hex.DecodeString(value)
	if err != nil {
		return out, fmt.Errorf("%s: invalid hex", field)
	}
	if len(raw) != 64 {
		return out, fmt.Errorf("%s: length %d, want 64", field, len(raw))
	}
	copy(out[:], raw)

	return out, nil
}

// decodeAttestations parses a batch of attestation entries.
func decodeAttestations(entries []attestationEntry) ([]bridge.Attestation, error) {
	attestations := make([]bridge.Attestation, 0, len(entries))

	for i, e := range entries {
		validator, err := decode32(fmt.Sprintf("attestations[%d].validator", i), e.Validator)
		if err != nil {
			return nil, err
		}
		signature, err := decode64(fmt.Sprintf("attestations[%d].signature", i), e.Signature)
		if err != nil {
			return nil, err
		}

		attestations = append(attestations, bridge.Attestation{
			Validator: validator,
			Signature: signature,
			Timestamp: e.Timestamp,
		})
	}

	return attestations, nil
}

func (p *attestationPayload) toRequest() (*bridge.BurnAttestationRequest, error) {
	user, err := decode32("user", p.User)
	if err != nil {
		return nil, err
	}

	attestations, err := decodeAttestations(p.Attestations)
	if err != nil {
		return nil, err
	}

	return &bridge.BurnAttestationRequest{
		AssetID:             bridge.Asset(p.AssetID),
		BurnNonce:           p.BurnNonce,
		User:                user,
		Amount:              p.Amount,
		ValidatorSetVersion: p.ValidatorSetVersion,
		Attestations:        attestations,
	}, nil
}

func (p *proofPayload) toProof() (bridge.Asset, bridge.PubKey, *lightclient.BurnProof, []lightclient.SignatureRecord, error) {
	fail := func(err error) (bridge.Asset, bridge.PubKey, *lightclient.BurnProof, []lightclient.SignatureRecord, error) {
		return 0, bridge.PubKey{}, nil, nil, err
	}

	prover, err := decode32("prover", p.Prover)
	if err != nil {
		return fail(err)
	}
	user, err := decode32("user", p.User)
	if err != nil {
		return fail(err)
	}
	blockHash, err := decode32("blockHash", p.BlockHash)
	if err != nil {
		return fail(err)
	}
	stateRoot, err := decode32("stateRoot", p.StateRoot)
	if err != nil {
		return fail(err)
	}

	recordData, err := hex.DecodeString(p.BurnRecordData)
	if err != nil {
		return fail(fmt.Errorf("burnRecordData: invalid hex"))
	}

	merkleProof := make([][32]byte, 0, len(p.MerkleProof))
	for i, node := range p.MerkleProof {
		decoded, err := decode32(fmt.Sprintf("merkleProof[%d]", i), node)
		if err != nil {
			return fail(err)
		}
		merkleProof = append(merkleProof, decoded)
	}

	votes := make([]lightclient.ValidatorVote, 0, len(p.Votes))
	for i, v := range p.Votes {
		validator, err := decode32(fmt.Sprintf("votes[%d].validator", i), v.Validator)
		if err != nil {
			return fail(err)
		}
		signature, err := decode64(fmt.Sprintf("votes[%d].signature", i), v.Signature)
		if err != nil {
			return fail(err)
		}
		votes = append(votes, lightclient.ValidatorVote{Validator: validator, Signature: signature})
	}

	records := make([]lightclient.SignatureRecord, 0, len(p.SignatureRecords))
	for i, r := range p.SignatureRecords {
		pubKey, err := decode32(fmt.Sprintf("signatureRecords[%d].pubKey", i), r.PubKey)
		if err != nil {
			return fail(err)
		}
		message, err := decode32(fmt.Sprintf("signatureRecords[%d].message", i), r.Message)
		if err != nil {
			return fail(err)
		}
		signature, err := decode64(fmt.Sprintf("signatureRecords[%d].signature", i), r.Signature)
		if err != nil {
			return fail(err)
		}
		records = append(records, lightclient.SignatureRecord{PubKey: pubKey, Message: message, Signature: signature})
	}

	proof := &lightclient.BurnProof{
		BurnNonce:      p.BurnNonce,
		User:           user,
		Amount:         p.Amount,
		Slot:           p.Slot,
		BlockHash:      blockHash,
		StateRoot:      stateRoot,
		BurnRecordData: recordData,
		MerkleProof:    merkleProof,
		Votes:          votes,
	}

	return bridge.Asset(p.AssetID), prover, proof, records, nil
}

func (p *rotatePayload) toRotation() ([]bridge.PubKey, uint8, []bridge.Attestation, error) {
	validators := make([]bridge.PubKey, 0, len(p.Validators))
	for i, v := range p.Validators {
		decoded, err := decode32(fmt.Sprintf("validators[%d]", i), v)
		if err != nil {
			return nil, 0, nil, err
		}
		validators = append(validators, decoded)
	}

	approvals, err := decodeAttestations(p.Approvals)
	if err != nil {
		return nil, 0, nil, err
	}

	return validators, p.Threshold, approvals, nil
}

func (p *mintPayload) toMint() (bridge.Asset, uint64, bridge.PubKey, []bridge.FeeTarget, error) {
	user, err := decode32("user", p.User)
	if err != nil {
		return 0, 0, bridge.PubKey{}, nil, err
	}

	targets := make([]bridge.FeeTarget, 0, len(p.FeeTargets))
	for i, ft := range p.FeeTargets {
		account, err := decode32(fmt.Sprintf("feeTargets[%d].account", i), ft.Account)
		if err != nil {
			return 0, 0, bridge.PubKey{}, nil, err
		}
		targets = append(targets, bridge.FeeTarget{Account: account, Writable: ft.Writable})
	}

	return bridge.Asset(p.AssetID), p.BurnNonce, user, targets, nil
}

// verifiedBurnView renders a verified burn for responses.
func verifiedBurnView(vb *bridge.VerifiedBurn) map[string]any {
	return map[string]any{
		"asset":      uint8(vb.AssetID),
		"nonce":      vb.BurnNonce,
		"user":       hex.EncodeToString(vb.User[:]),
		"amount":     vb.Amount,
		"verifiedAt": vb.VerifiedAt,
		"processed":  vb.Processed,
	}
}
