package bridge

import (
	"errors"
	"testing"
)

// mintFixture verifies a burn and returns a controller ready to mint it.
func mintFixture(t *testing.T, env *testEnv, asset Asset, nonce, amount uint64, user PubKey) *Controller {
	t.Helper()

	req := env.attestationRequest(asset, nonce, amount, user, 2)
	if _, err := env.verifier.SubmitAttestation(req); err != nil {
		t.Fatalf("verify fixture: %v", err)
	}

	return env.newController(t, asset)
}

// TestMint tests the happy path: the verified amount is credited, fees
// flow to every validator, and the state counters advance.
func TestMint(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	// Amount covers the three validator fees with margin.
	amount := uint64(3*DefaultFeePerValidator + 500)
	ctrl := mintFixture(t, env, AssetDGN, 7, amount, user)

	set := env.gov.Current()
	minted, err := ctrl.Mint(AssetDGN, 7, user, set, feeTargets(set))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted != amount {
		t.Fatalf("minted = %d, want %d", minted, amount)
	}

	balance, err := env.ledger.Balance(env.mint, user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("user balance = %d, want 500 after fees", balance)
	}

	for i, v := range set.Validators {
		fee, err := env.ledger.Balance(env.mint, v)
		if err != nil {
			t.Fatalf("validator balance: %v", err)
		}
		if fee != DefaultFeePerValidator {
			t.Fatalf("validator %d fee = %d, want %d", i, fee, DefaultFeePerValidator)
		}
	}

	state := ctrl.State()
	if state.ProcessedBurns != 1 || state.TotalMinted != amount {
		t.Fatalf("counters = %d/%d, want 1/%d", state.ProcessedBurns, state.TotalMinted, amount)
	}

	select {
	case event := <-ctrl.Events():
		if event.Nonce != 7 || event.Amount != amount {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("no mint event emitted")
	}
}

// TestMintReplay tests that a burn mints exactly once.
func TestMintReplay(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	amount := uint64(3 * DefaultFeePerValidator * 2)
	ctrl := mintFixture(t, env, AssetDGN, 7, amount, user)
	set := env.gov.Current()

	if _, err := ctrl.Mint(AssetDGN, 7, user, set, feeTargets(set)); err != nil {
		t.Fatalf("first mint: %v", err)
	}

	if _, err := ctrl.Mint(AssetDGN, 7, user, set, feeTargets(set)); !errors.Is(err, ErrBurnAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrBurnAlreadyProcessed", err)
	}

	// Balance unchanged by the failed replay.
	balance, _ := env.ledger.Balance(env.mint, user)
	if balance != amount-3*DefaultFeePerValidator {
		t.Fatalf("balance changed on replay: %d", balance)
	}
}

// TestMintUnverified tests minting a burn that was never verified.
func TestMintUnverified(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ctrl := env.newController(t, AssetDGN)
	set := env.gov.Current()

	_, err := ctrl.Mint(AssetDGN, 1, testKey(0x11), set, feeTargets(set))
	if !errors.Is(err, ErrBurnNotVerified) {
		t.Fatalf("err = %v, want ErrBurnNotVerified", err)
	}
}

// TestMintWrongAsset tests the controller's permanent asset binding.
func TestMintWrongAsset(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)
	ctrl := mintFixture(t, env, AssetDGN, 7, 100, user)
	set := env.gov.Current()

	_, err := ctrl.Mint(AssetXENCAT, 7, user, set, feeTargets(set))
	if !errors.Is(err, ErrAssetNotMintable) {
		t.Fatalf("err = %v, want ErrAssetNotMintable", err)
	}
}

// TestMintStaleSnapshot tests that a roster snapshot from another
// version cannot drive fee distribution.
func TestMintStaleSnapshot(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)
	ctrl := mintFixture(t, env, AssetDGN, 7, 100, user)

	stale := env.gov.Current()
	stale.Version = 99

	_, err := ctrl.Mint(AssetDGN, 7, user, stale, feeTargets(stale))
	if !errors.Is(err, ErrWrongSetVersion) {
		t.Fatalf("err = %v, want ErrWrongSetVersion", err)
	}
}

// TestMintFeeTargetValidation tests the per-validator fee target
// checks: missing, mismatched, and read-only targets each abort the
// whole mint with nothing applied.
func TestMintFeeTargetValidation(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	amount := uint64(3 * DefaultFeePerValidator * 2)
	ctrl := mintFixture(t, env, AssetDGN, 7, amount, user)
	set := env.gov.Current()

	tests := []struct {
		name    string
		targets []FeeTarget
		want    error
	}{
		{"missing", feeTargets(set)[:2], ErrMissingFeeTarget},
		{"mismatch", func() []FeeTarget {
			targets := feeTargets(set)
			targets[1].Account = testKey(0x99)
			return targets
		}(), ErrFeeTargetMismatch},
		{"read-only", func() []FeeTarget {
			targets := feeTargets(set)
			targets[2].Writable = false
			return targets
		}(), ErrFeeTargetNotWritable},
	}

	for _, tt := range tests {
		if _, err := ctrl.Mint(AssetDGN, 7, user, set, tt.targets); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}

	// All attempts failed, so the burn must still be mintable.
	if _, err := ctrl.Mint(AssetDGN, 7, user, set, feeTargets(set)); err != nil {
		t.Fatalf("final mint: %v", err)
	}
}

// TestMintZeroFee tests that a zero fee skips target validation and
// transfers entirely.
func TestMintZeroFee(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)
	ctrl := mintFixture(t, env, AssetDGN, 7, 100, user)

	if err := ctrl.SetFee(env.authority, 0); err != nil {
		t.Fatalf("set fee: %v", err)
	}

	set := env.gov.Current()
	if _, err := ctrl.Mint(AssetDGN, 7, user, set, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}

	balance, _ := env.ledger.Balance(env.mint, user)
	if balance != 100 {
		t.Fatalf("balance = %d, want 100", balance)
	}
}

// TestSetFeeAuthority tests that only the authority can change fees.
func TestSetFeeAuthority(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	ctrl := env.newController(t, AssetDGN)

	if err := ctrl.SetFee(testKey(0x99), 1); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("err = %v, want ErrNotAuthority", err)
	}

	if err := ctrl.SetFee(env.authority, 5); err != nil {
		t.Fatalf("authority set fee: %v", err)
	}
	if ctrl.State().FeePerValidator != 5 {
		t.Fatal("fee not updated")
	}
}

// TestControllerReopen tests that controller state survives a reopen.
func TestControllerReopen(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	user := testKey(0x11)

	amount := uint64(3 * DefaultFeePerValidator * 2)
	ctrl := mintFixture(t, env, AssetDGN, 7, amount, user)
	set := env.gov.Current()

	if _, err := ctrl.Mint(AssetDGN, 7, user, set, feeTargets(set)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	reopened, err := OpenController(env.db, env.ledger, env.burns, AssetDGN)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	state := reopened.State()
	if state.ProcessedBurns != 1 || state.TotalMinted != amount {
		t.Fatalf("reopened counters = %d/%d", state.ProcessedBurns, state.TotalMinted)
	}
}
