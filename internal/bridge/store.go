package bridge

import (
	"encoding/binary"
	"fmt"

	"X1Bridge/internal/storage"
)

// Storage key prefixes for the bridge's keyed records.
var (
	prefixVerified  = []byte("vb:")
	prefixProcessed = []byte("pb:")
	prefixMintState = []byte("ms:")
)

// BurnStore persists verified and processed burn records, addressed by
// composite key rather than by reference. Creation is the replay guard:
// creating a record whose key already exists fails, atomically and
// distinguishably.
type BurnStore struct {
	db *storage.Storage
}

// NewBurnStore creates a burn store backed by the given storage.
func NewBurnStore(db *storage.Storage) *BurnStore {
	return &BurnStore{db: db}
}

// verifiedKey builds the verified burn key: "vb:" + asset + user + nonce.
func verifiedKey(asset Asset, user PubKey, nonce uint64) []byte {
	key := make([]byte, 0, len(prefixVerified)+1+32+8)
	key = append(key, prefixVerified...)
	key = append(key, byte(asset))
	key = append(key, user[:]...)
	key = binary.LittleEndian.AppendUint64(key, nonce)

	return key
}

// processedKey builds the replay guard key: "pb:" + asset + nonce + user.
// Namespacing by asset is mandatory: the same (user, nonce) pair is
// legitimately reusable across different assets.
func processedKey(asset Asset, nonce uint64, user PubKey) []byte {
	key := make([]byte, 0, len(prefixProcessed)+1+8+32)
	key = append(key, prefixProcessed...)
	key = append(key, byte(asset))
	key = binary.LittleEndian.AppendUint64(key, nonce)
	key = append(key, user[:]...)

	return key
}

// mintStateKey builds the controller state key: "ms:" + asset.
func mintStateKey(asset Asset) []byte {
	key := make([]byte, 0, len(prefixMintState)+1)
	key = append(key, prefixMintState...)
	key = append(key, byte(asset))

	return key
}

// CreateVerified stores a new verification result.
// Returns ErrBurnAlreadyVerified if the key exists.
func (s *BurnStore) CreateVerified(vb *VerifiedBurn) error {
	key := verifiedKey(vb.AssetID, vb.User, vb.BurnNonce)

	err := s.db.CreateOnce(key, EncodeVerifiedBurn(vb))
	if err == storage.ErrKeyExists {
		return ErrBurnAlreadyVerified
	}
	if err != nil {
		return fmt.Errorf("store verified burn: %w", err)
	}

	return nil
}

// GetVerified loads a verification result. Returns ErrBurnNotVerified
// if the key does not exist.
func (s *BurnStore) GetVerified(asset Asset, user PubKey, nonce uint64) (*VerifiedBurn, error) {
	data, err := s.db.Get(verifiedKey(asset, user, nonce))
	if err != nil {
		return nil, fmt.Errorf("load verified burn: %w", err)
	}
	if data == nil {
		return nil, ErrBurnNotVerified
	}

	return DecodeVerifiedBurn(data)
}

// HasProcessed reports whether the replay guard record exists.
func (s *BurnStore) HasProcessed(asset Asset, nonce uint64, user PubKey) (bool, error) {
	return s.db.Has(processedKey(asset, nonce, user))
}

// markProcessedKVs returns the batch writes that flip a verified burn to
// processed and create the replay guard record. The caller commits them
// inside the mint's atomic batch.
func (s *BurnStore) markProcessedKVs(vb *VerifiedBurn, processedAt int64) []storage.KeyValue {
	done := *vb
	done.Processed = true

	guard := &ProcessedBurn{
		AssetID:     vb.AssetID,
		Nonce:       vb.BurnNonce,
		User:        vb.User,
		Amount:      vb.Amount,
		ProcessedAt: processedAt,
	}

	return []storage.KeyValue{
		{Key: verifiedKey(vb.AssetID, vb.User, vb.BurnNonce), Value: EncodeVerifiedBurn(&done)},
		{Key: processedKey(vb.AssetID, vb.BurnNonce, vb.User), Value: EncodeProcessedBurn(guard)},
	}
}

// GetProcessed loads a replay guard record, or nil if absent.
func (s *BurnStore) GetProcessed(asset Asset, nonce uint64, user PubKey) (*ProcessedBurn, error) {
	data, err := s.db.Get(processedKey(asset, nonce, user))
	if err != nil {
		return nil, fmt.Errorf("load processed burn: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return DecodeProcessedBurn(data)
}
