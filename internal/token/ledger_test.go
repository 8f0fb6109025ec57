package token

import (
	"errors"
	"testing"

	"X1Bridge/internal/storage"
)

// newTestLedger opens a ledger over temp-dir storage.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewLedger(db)
}

// key builds a deterministic 32-byte id.
func key(seed byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = seed
	}

	return k
}

// TestCreateMint tests mint registration and duplicate rejection.
func TestCreateMint(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority := key(0x01), key(0x02)

	if err := ledger.CreateMint(mint, authority, Decimals); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.CreateMint(mint, authority, Decimals); !errors.Is(err, ErrMintExists) {
		t.Fatalf("err = %v, want ErrMintExists", err)
	}

	info, err := ledger.Mint(mint)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.Authority != authority || info.Decimals != Decimals || info.Supply != 0 {
		t.Fatalf("unexpected mint: %+v", info)
	}
}

// TestMintTo tests supply and balance credit with authority check.
func TestMintTo(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, owner := key(0x01), key(0x02), key(0x03)

	if err := ledger.CreateMint(mint, authority, Decimals); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ledger.MintTo(mint, key(0x99), owner, 100); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("err = %v, want ErrNotAuthority", err)
	}

	if err := ledger.MintTo(mint, authority, owner, 100); err != nil {
		t.Fatalf("mint to: %v", err)
	}

	balance, err := ledger.Balance(mint, owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance = %d, want 100", balance)
	}

	info, _ := ledger.Mint(mint)
	if info.Supply != 100 {
		t.Fatalf("supply = %d, want 100", info.Supply)
	}
}

// TestTransfer tests balance movement and the insufficient funds check.
func TestTransfer(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, a, b := key(0x01), key(0x02), key(0x03), key(0x04)

	ledger.CreateMint(mint, authority, Decimals)
	ledger.MintTo(mint, authority, a, 100)

	if err := ledger.Transfer(mint, a, b, 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := ledger.Transfer(mint, a, b, 41); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	balanceA, _ := ledger.Balance(mint, a)
	balanceB, _ := ledger.Balance(mint, b)
	if balanceA != 40 || balanceB != 60 {
		t.Fatalf("balances = %d/%d, want 40/60", balanceA, balanceB)
	}
}

// TestApplyAtomic tests that a failing op in a batch leaves nothing
// applied, including the extra key-value pairs.
func TestApplyAtomic(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, a, b := key(0x01), key(0x02), key(0x03), key(0x04)

	ledger.CreateMint(mint, authority, Decimals)

	marker := storage.KeyValue{Key: []byte("test:marker"), Value: []byte{1}}

	// Mint then over-transfer: the whole batch must fail.
	err := ledger.Apply([]Op{
		{Kind: OpMint, Mint: mint, Authority: authority, To: a, Amount: 50},
		{Kind: OpTransfer, Mint: mint, From: a, To: b, Amount: 51},
	}, []storage.KeyValue{marker})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	balance, _ := ledger.Balance(mint, a)
	if balance != 0 {
		t.Fatalf("partial apply: balance = %d", balance)
	}

	has, _ := ledger.db.Has(marker.Key)
	if has {
		t.Fatal("extra kv written by failed batch")
	}
}

// TestApplySequential tests that ops see effects of earlier ops in the
// same batch, so fees can be paid out of the freshly minted amount.
func TestApplySequential(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, a, b := key(0x01), key(0x02), key(0x03), key(0x04)

	ledger.CreateMint(mint, authority, Decimals)

	err := ledger.Apply([]Op{
		{Kind: OpMint, Mint: mint, Authority: authority, To: a, Amount: 100},
		{Kind: OpTransfer, Mint: mint, From: a, To: b, Amount: 100},
	}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	balanceB, _ := ledger.Balance(mint, b)
	if balanceB != 100 {
		t.Fatalf("balance = %d, want 100", balanceB)
	}
}

// TestSupplyOverflow tests checked supply arithmetic.
func TestSupplyOverflow(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, owner := key(0x01), key(0x02), key(0x03)

	ledger.CreateMint(mint, authority, Decimals)
	ledger.MintTo(mint, authority, owner, ^uint64(0))

	if err := ledger.MintTo(mint, authority, owner, 1); !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("err = %v, want ErrSupplyOverflow", err)
	}
}

// TestTransferAuthority tests handover of mint control.
func TestTransferAuthority(t *testing.T) {
	ledger := newTestLedger(t)
	mint, authority, next := key(0x01), key(0x02), key(0x03)

	ledger.CreateMint(mint, authority, Decimals)

	if err := ledger.TransferAuthority(mint, key(0x99), next); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("err = %v, want ErrNotAuthority", err)
	}

	if err := ledger.TransferAuthority(mint, authority, next); err != nil {
		t.Fatalf("transfer authority: %v", err)
	}

	// Old authority can no longer mint, new one can.
	if err := ledger.MintTo(mint, authority, next, 1); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("old authority still mints: %v", err)
	}
	if err := ledger.MintTo(mint, next, next, 1); err != nil {
		t.Fatalf("new authority mint: %v", err)
	}
}
