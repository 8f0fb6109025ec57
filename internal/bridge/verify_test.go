package bridge

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/zeebo/blake3"

	"X1Bridge/internal/lightclient"
)

// TestSubmitAttestation tests the happy path: threshold attestations
// create a verified, unprocessed burn record.
func TestSubmitAttestation(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	req := env.attestationRequest(AssetXENCAT, 42, 1000, user, 2)

	vb, err := env.verifier.SubmitAttestation(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if vb.Processed {
		t.Fatal("fresh verification must be unprocessed")
	}
	if vb.Amount != 1000 || vb.BurnNonce != 42 {
		t.Fatalf("unexpected record: %+v", vb)
	}

	stored, err := env.burns.GetVerified(AssetXENCAT, user, 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Amount != 1000 {
		t.Fatalf("stored amount = %d, want 1000", stored.Amount)
	}
}

// TestSubmitAttestationRejectsWrongVersion tests version pinning: a
// batch signed under another roster version is rejected before any
// signature check.
func TestSubmitAttestationRejectsWrongVersion(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 2)
	req.ValidatorSetVersion = 99

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrWrongSetVersion) {
		t.Fatalf("err = %v, want ErrWrongSetVersion", err)
	}
}

// TestSubmitAttestationRejectsEmpty tests the empty batch check.
func TestSubmitAttestationRejectsEmpty(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 2)
	req.Attestations = nil

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrEmptyAttestations) {
		t.Fatalf("err = %v, want ErrEmptyAttestations", err)
	}
}

// TestSubmitAttestationRejectsInvalidAsset tests asset id validation.
func TestSubmitAttestationRejectsInvalidAsset(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 2)
	req.AssetID = 9

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("err = %v, want ErrInvalidAsset", err)
	}
}

// TestSubmitAttestationRejectsDuplicate tests that the same validator
// cannot count twice.
func TestSubmitAttestationRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 1)
	req.Attestations = append(req.Attestations, req.Attestations[0])

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrDuplicateValidator) {
		t.Fatalf("err = %v, want ErrDuplicateValidator", err)
	}
}

// TestSubmitAttestationRejectsOutsider tests membership enforcement.
func TestSubmitAttestationRejectsOutsider(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	outsider := newTestValidators(t, 1)[0]

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 2)
	message := AttestationMessage(req.AssetID, req.ValidatorSetVersion, req.BurnNonce, req.Amount, req.User)
	req.Attestations[1] = outsider.sign(message)

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrUnknownValidator) {
		t.Fatalf("err = %v, want ErrUnknownValidator", err)
	}
}

// TestSubmitAttestationRejectsForgedSignature tests that one invalid
// signature fails the whole batch.
func TestSubmitAttestationRejectsForgedSignature(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 3)
	req.Attestations[1].Signature[0] ^= 0xff

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

// TestSubmitAttestationRejectsBelowThreshold tests the quorum floor.
func TestSubmitAttestationRejectsBelowThreshold(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 100, testKey(0x11), 1)

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrInsufficientAttestations) {
		t.Fatalf("err = %v, want ErrInsufficientAttestations", err)
	}
}

// TestSubmitAttestationRejectsReplay tests that verifying the same
// burn twice fails distinguishably.
func TestSubmitAttestationRejectsReplay(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 42, 1000, testKey(0x11), 2)

	if _, err := env.verifier.SubmitAttestation(req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrBurnAlreadyVerified) {
		t.Fatalf("err = %v, want ErrBurnAlreadyVerified", err)
	}
}

// TestSubmitAttestationRejectsZeroAmount tests the structural amount
// check.
func TestSubmitAttestationRejectsZeroAmount(t *testing.T) {
	env := newTestEnv(t, 3, 2)

	req := env.attestationRequest(AssetXENCAT, 1, 0, testKey(0x11), 2)

	if _, err := env.verifier.SubmitAttestation(req); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("err = %v, want ErrZeroAmount", err)
	}
}

// TestSubmitAttestationSameNonceAcrossAssets tests that the same
// (user, nonce) pair is independent per asset.
func TestSubmitAttestationSameNonceAcrossAssets(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	if _, err := env.verifier.SubmitAttestation(env.attestationRequest(AssetXENCAT, 7, 100, user, 2)); err != nil {
		t.Fatalf("xencat: %v", err)
	}
	if _, err := env.verifier.SubmitAttestation(env.attestationRequest(AssetDGN, 7, 100, user, 2)); err != nil {
		t.Fatalf("dgn: %v", err)
	}
}

// pairHash mirrors the sorted-pair interior node hash of the source
// chain's state tree.
func pairHash(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)

	return blake3.Sum256(buf)
}

// enableProofPath wires the light client onto the env's verifier for
// the given asset, reusing the env's validators as an equal-stake
// roster. The proven slot is 100, a full finality window in the past.
func (env *testEnv) enableProofPath(t *testing.T, asset Asset, fee ProofFee) {
	t.Helper()

	config := &lightclient.ValidatorConfig{}
	for _, v := range env.validators {
		config.Validators = append(config.Validators, lightclient.ValidatorInfo{Identity: v.pub, Stake: 100})
	}

	slot := func() uint64 { return 100 + lightclient.FinalitySlots + 1 }
	client := lightclient.NewClient(config, lightclient.DefaultPolicy(), slot)

	env.verifier.WithLightClient(client, env.ledger, fee, asset)
}

// burnProof builds a fully voted two-leaf proof for the given claim,
// signed by every env validator.
func (env *testEnv) burnProof(t *testing.T, nonce, amount uint64, user PubKey) (*lightclient.BurnProof, *lightclient.PreverifiedBatch) {
	t.Helper()

	data := lightclient.EncodeBurnRecord(&lightclient.BurnRecord{
		User:      user,
		Amount:    amount,
		Nonce:     nonce,
		Timestamp: 1700000000,
	})
	sibling := lightclient.LeafHash([]byte("neighbor record"))
	root := pairHash(lightclient.LeafHash(data), sibling)

	var blockHash [32]byte
	blockHash[0] = 0xb1
	message := lightclient.VoteMessage(blockHash, 100)

	votes := make([]lightclient.ValidatorVote, 0, len(env.validators))
	records := make([]lightclient.SignatureRecord, 0, len(env.validators))
	for _, v := range env.validators {
		var sig [64]byte
		copy(sig[:], ed25519.Sign(v.priv, message[:]))
		votes = append(votes, lightclient.ValidatorVote{Validator: v.pub, Signature: sig})
		records = append(records, lightclient.SignatureRecord{PubKey: v.pub, Message: message, Signature: sig})
	}

	sigs, err := lightclient.VerifySignatures(records)
	if err != nil {
		t.Fatalf("verify signatures: %v", err)
	}

	return &lightclient.BurnProof{
		BurnNonce:      nonce,
		User:           user,
		Amount:         amount,
		Slot:           100,
		BlockHash:      blockHash,
		StateRoot:      root,
		BurnRecordData: data,
		MerkleProof:    [][32]byte{sibling},
		Votes:          votes,
	}, sigs
}

// TestSubmitBurnProof tests the proof path happy path: the record is
// created and the prover pays the verification fee.
func TestSubmitBurnProof(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	prover := testKey(0x33)
	receiver := testKey(0xfe)

	env.enableProofPath(t, AssetXENCAT, ProofFee{Mint: env.mint, Receiver: receiver, Amount: 10})
	if err := env.ledger.MintTo(env.mint, env.authority, prover, 100); err != nil {
		t.Fatalf("fund prover: %v", err)
	}

	user := testKey(0x11)
	proof, sigs := env.burnProof(t, 7, 1000, user)

	vb, err := env.verifier.SubmitBurnProof(AssetXENCAT, prover, proof, sigs)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if vb.Amount != 1000 || vb.BurnNonce != 7 || vb.Processed {
		t.Fatalf("unexpected record: %+v", vb)
	}

	if balance, _ := env.ledger.Balance(env.mint, prover); balance != 90 {
		t.Fatalf("prover balance = %d, want 90", balance)
	}
	if balance, _ := env.ledger.Balance(env.mint, receiver); balance != 10 {
		t.Fatalf("receiver balance = %d, want 10", balance)
	}
}

// TestSubmitBurnProofSingleAsset tests that proof evidence only ever
// verifies the asset the path is configured for: the same proof cannot
// create a second record under another asset id.
func TestSubmitBurnProofSingleAsset(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	prover := testKey(0x33)
	user := testKey(0x11)

	env.enableProofPath(t, AssetXENCAT, ProofFee{})

	proof, sigs := env.burnProof(t, 7, 1000, user)

	if _, err := env.verifier.SubmitBurnProof(AssetXENCAT, prover, proof, sigs); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := env.verifier.SubmitBurnProof(AssetDGN, prover, proof, sigs); !errors.Is(err, ErrAssetNotProvable) {
		t.Fatalf("err = %v, want ErrAssetNotProvable", err)
	}
	if _, err := env.burns.GetVerified(AssetDGN, user, 7); !errors.Is(err, ErrBurnNotVerified) {
		t.Fatal("proof must not verify a burn under a second asset")
	}

	if _, err := env.verifier.SubmitBurnProof(AssetXENCAT, prover, proof, sigs); !errors.Is(err, ErrBurnAlreadyVerified) {
		t.Fatalf("err = %v, want ErrBurnAlreadyVerified", err)
	}
}
