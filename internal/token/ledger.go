// Package token is the destination-side asset ledger: token mints with a
// fixed decimal precision, per-owner balances, and atomic transfer/mint
// application. It plays the role the SPL token program plays for the
// on-chain original.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"X1Bridge/internal/storage"
)

// Decimals is the fixed precision of every bridged token.
const Decimals = 6

var (
	ErrMintExists        = errors.New("token: mint already exists")
	ErrUnknownMint       = errors.New("token: unknown mint")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrSupplyOverflow    = errors.New("token: supply overflow")
	ErrBalanceOverflow   = errors.New("token: balance overflow")
	ErrNotAuthority      = errors.New("token: not the mint authority")
)

// Storage key prefixes.
var (
	prefixMint    = []byte("tk:m:")
	prefixBalance = []byte("tk:b:")
)

// MintInfo describes one token mint.
type MintInfo struct {
	Authority [32]byte
	Decimals  uint8
	Supply    uint64
}

// OpKind selects a ledger mutation type.
type OpKind uint8

const (
	// OpMint credits newly created tokens to an owner.
	OpMint OpKind = iota + 1

	// OpTransfer moves tokens between owners of the same mint.
	OpTransfer
)

// Op is one ledger mutation inside an atomic unit of work.
type Op struct {
	Kind      OpKind
	Mint      [32]byte
	From      [32]byte // transfer source (unused for OpMint)
	To        [32]byte
	Amount    uint64
	Authority [32]byte // required for OpMint
}

// Ledger stores mints and balances in Pebble. All mutation goes through
// Apply, which validates and commits a whole operation as one batch, so
// concurrent operations never observe partial effects.
type Ledger struct {
	mu sync.Mutex
	db *storage.Storage
}

// NewLedger creates a ledger backed by the given storage.
func NewLedger(db *storage.Storage) *Ledger {
	return &Ledger{db: db}
}

// mintKey builds the mint record key.
func mintKey(mint [32]byte) []byte {
	key := make([]byte, 0, len(prefixMint)+32)
	key = append(key, prefixMint...)
	key = append(key, mint[:]...)

	return key
}

// balanceKey builds the balance record key.
func balanceKey(mint, owner [32]byte) []byte {
	key := make([]byte, 0, len(prefixBalance)+64)
	key = append(key, prefixBalance...)
	key = append(key, mint[:]...)
	key = append(key, owner[:]...)

	return key
}

// encodeMint encodes a mint record: authority(32) + decimals(1) + supply(8).
func encodeMint(info *MintInfo) []byte {
	buf := make([]byte, 0, 32+1+8)
	buf = append(buf, info.Authority[:]...)
	buf = append(buf, info.Decimals)
	buf = binary.LittleEndian.AppendUint64(buf, info.Supply)

	return buf
}

// decodeMint decodes a mint record.
func decodeMint(data []byte) (*MintInfo, error) {
	if len(data) != 41 {
		return nil, fmt.Errorf("mint record length %d, want 41", len(data))
	}

	info := &MintInfo{
		Decimals: data[32],
		Supply:   binary.LittleEndian.Uint64(data[33:41]),
	}
	copy(info.Authority[:], data[0:32])

	return info, nil
}

// CreateMint registers a new mint with zero supply.
// Returns ErrMintExists if the mint id is taken.
func (l *Ledger) CreateMint(mint, authority [32]byte, decimals uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := &MintInfo{Authority: authority, Decimals: decimals}

	err := l.db.CreateOnce(mintKey(mint), encodeMint(info))
	if err == storage.ErrKeyExists {
		return ErrMintExists
	}

	return err
}

// Mint returns the mint record.
func (l *Ledger) Mint(mint [32]byte) (*MintInfo, error) {
	data, err := l.db.Get(mintKey(mint))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrUnknownMint
	}

	return decodeMint(data)
}

// Balance returns the owner's balance, zero if no record exists.
func (l *Ledger) Balance(mint, owner [32]byte) (uint64, error) {
	data, err := l.db.Get(balanceKey(mint, owner))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("balance record length %d, want 8", len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}

// TransferAuthority moves a mint's authority to a new key.
func (l *Ledger) TransferAuthority(mint, current, next [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.Mint(mint)
	if err != nil {
		return err
	}
	if info.Authority != current {
		return ErrNotAuthority
	}

	info.Authority = next

	return l.db.Set(mintKey(mint), encodeMint(info))
}

// Apply validates and commits a list of ops plus any extra key-value
// pairs in one atomic batch. Either everything is written or nothing:
// a failing op leaves no partial effects, and the extra pairs (bridge
// records, counters) land in the same commit as the token movements.
func (l *Ledger) Apply(ops []Op, extra []storage.KeyValue) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[string]uint64)
	mints := make(map[[32]byte]*MintInfo)

	getBalance := func(mint, owner [32]byte) (uint64, error) {
		key := string(balanceKey(mint, owner))
		if b, ok := balances[key]; ok {
			return b, nil
		}
		b, err := l.Balance(mint, owner)
		if err != nil {
			return 0, err
		}
		balances[key] = b
		return b, nil
	}

	getMint := func(mint [32]byte) (*MintInfo, error) {
		if info, ok := mints[mint]; ok {
			return info, nil
		}
		info, err := l.Mint(mint)
		if err != nil {
			return nil, err
		}
		mints[mint] = info
		return info, nil
	}

	for _, op := range ops {
		switch op.Kind {
		case OpMint:
			info, err := getMint(op.Mint)
			if err != nil {
				return err
			}
			if info.Authority != op.Authority {
				return ErrNotAuthority
			}
			if info.Supply+op.Amount < info.Supply {
				return ErrSupplyOverflow
			}
			info.Supply += op.Amount

			b, err := getBalance(op.Mint, op.To)
			if err != nil {
				return err
			}
			if b+op.Amount < b {
				return ErrBalanceOverflow
			}
			balances[string(balanceKey(op.Mint, op.To))] = b + op.Amount

		case OpTransfer:
			from, err := getBalance(op.Mint, op.From)
			if err != nil {
				return err
			}
			if from < op.Amount {
				return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, from, op.Amount)
			}
			balances[string(balanceKey(op.Mint, op.From))] = from - op.Amount

			to, err := getBalance(op.Mint, op.To)
			if err != nil {
				return err
			}
			if to+op.Amount < to {
				return ErrBalanceOverflow
			}
			balances[string(balanceKey(op.Mint, op.To))] = to + op.Amount

		default:
			return fmt.Errorf("unknown op kind: %d", op.Kind)
		}
	}

	kvs := make([]storage.KeyValue, 0, len(balances)+len(mints)+len(extra))
	for key, balance := range balances {
		value := make([]byte, 8)
		binary.LittleEndian.PutUint64(value, balance)
		kvs = append(kvs, storage.KeyValue{Key: []byte(key), Value: value})
	}
	for mint, info := range mints {
		kvs = append(kvs, storage.KeyValue{Key: mintKey(mint), Value: encodeMint(info)})
	}
	kvs = append(kvs, extra...)

	return l.db.SetBatch(kvs)
}

// Transfer moves tokens between two owners as a standalone operation.
func (l *Ledger) Transfer(mint, from, to [32]byte, amount uint64) error {
	return l.Apply([]Op{{Kind: OpTransfer, Mint: mint, From: from, To: to, Amount: amount}}, nil)
}

// MintTo credits newly created tokens as a standalone operation.
func (l *Ledger) MintTo(mint, authority, to [32]byte, amount uint64) error {
	return l.Apply([]Op{{Kind: OpMint, Mint: mint, Authority: authority, To: to, Amount: amount}}, nil)
}
