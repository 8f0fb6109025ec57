package bridge

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"X1Bridge/internal/storage"
	"X1Bridge/internal/token"
)

// testValidator is a signing validator identity for tests.
type testValidator struct {
	pub  PubKey
	priv ed25519.PrivateKey
}

// newTestValidators generates n validator keypairs.
func newTestValidators(t *testing.T, n int) []testValidator {
	t.Helper()

	validators := make([]testValidator, n)
	for i := range validators {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		copy(validators[i].pub[:], pub)
		validators[i].priv = priv
	}

	return validators
}

// pubKeys extracts the roster from a validator list.
func pubKeys(validators []testValidator) []PubKey {
	keys := make([]PubKey, len(validators))
	for i, v := range validators {
		keys[i] = v.pub
	}

	return keys
}

// sign produces an attestation over a 32-byte message.
func (v testValidator) sign(message [32]byte) Attestation {
	var sig Signature
	copy(sig[:], ed25519.Sign(v.priv, message[:]))

	return Attestation{Validator: v.pub, Signature: sig}
}

// newTestDB opens a temp-dir backed storage, closed on cleanup.
func newTestDB(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// testKey builds a deterministic 32-byte key from a seed byte.
func testKey(seed byte) PubKey {
	var pk PubKey
	for i := range pk {
		pk[i] = seed
	}

	return pk
}

// testEnv bundles the components most bridge tests need.
type testEnv struct {
	db         *storage.Storage
	gov        *Governance
	burns      *BurnStore
	ledger     *token.Ledger
	verifier   *Verifier
	validators []testValidator
	authority  PubKey
	mint       PubKey
}

// newTestEnv builds a bridge with n validators at the given threshold
// and a registered token mint.
func newTestEnv(t *testing.T, n int, threshold uint8) *testEnv {
	t.Helper()

	db := newTestDB(t)
	validators := newTestValidators(t, n)

	gov, err := InitGovernance(db, pubKeys(validators), threshold)
	if err != nil {
		t.Fatalf("init governance: %v", err)
	}

	env := &testEnv{
		db:         db,
		gov:        gov,
		burns:      NewBurnStore(db),
		ledger:     token.NewLedger(db),
		validators: validators,
		authority:  testKey(0xaa),
		mint:       testKey(0xbb),
	}
	env.verifier = NewVerifier(gov, env.burns)

	if err := env.ledger.CreateMint(env.mint, env.authority, token.Decimals); err != nil {
		t.Fatalf("create mint: %v", err)
	}

	return env
}

// newController creates a mint controller for the asset, pinned to the
// current roster version.
func (env *testEnv) newController(t *testing.T, asset Asset) *Controller {
	t.Helper()

	ctrl, err := InitController(env.db, env.ledger, env.burns, asset, env.authority, env.mint, env.gov.Current().Version)
	if err != nil {
		t.Fatalf("init controller: %v", err)
	}

	return ctrl
}

// attestationRequest builds a fully signed request from the first
// `signers` validators of the env.
func (env *testEnv) attestationRequest(asset Asset, nonce, amount uint64, user PubKey, signers int) *BurnAttestationRequest {
	version := env.gov.Current().Version
	message := AttestationMessage(asset, version, nonce, amount, user)

	attestations := make([]Attestation, 0, signers)
	for _, v := range env.validators[:signers] {
		attestations = append(attestations, v.sign(message))
	}

	return &BurnAttestationRequest{
		AssetID:             asset,
		BurnNonce:           nonce,
		User:                user,
		Amount:              amount,
		ValidatorSetVersion: version,
		Attestations:        attestations,
	}
}

// feeTargets builds writable fee targets matching the roster order.
func feeTargets(set ValidatorSet) []FeeTarget {
	targets := make([]FeeTarget, len(set.Validators))
	for i, v := range set.Validators {
		targets[i] = FeeTarget{Account: v, Writable: true}
	}

	return targets
}
