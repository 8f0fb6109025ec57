// Package snapshot exports and imports the bridge's persistent state
// as a compressed, checksummed archive: roster, verified and processed
// burns, controller state, and the token ledger. Used to seed new
// nodes and for cold backups.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"X1Bridge/internal/logger"
	"X1Bridge/internal/storage"
)

const (
	// formatVersion is the current snapshot format version.
	formatVersion = 1

	// maxEntrySize bounds a single key or value (16 MB).
	maxEntrySize = 16 << 20
)

// magic identifies a snapshot stream after decompression.
var magic = []byte("X1BSNAP")

// statePrefixes are the key namespaces included in a snapshot.
var statePrefixes = [][]byte{
	[]byte("vs:"),
	[]byte("vb:"),
	[]byte("pb:"),
	[]byte("ms:"),
	[]byte("tk:"),
}

// entry is one key-value pair in the archive.
type entry struct {
	key   []byte
	value []byte
}

// Export writes a snapshot of the bridge state to w.
//
// Layout after zstd: magic + u32 version + u32 count +
// count * (u32 keyLen + key + u32 valueLen + value) + blake3 checksum
// of everything before it. Entries are sorted by key so identical
// state always produces an identical archive.
func Export(db *storage.Storage, w io.Writer) error {
	entries, err := collectEntries(db)
	if err != nil {
		return fmt.Errorf("collect state: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	body := encodeBody(entries)
	checksum := blake3.Sum256(body)

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}

	if _, err := encoder.Write(body); err != nil {
		encoder.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if _, err := encoder.Write(checksum[:]); err != nil {
		encoder.Close()
		return fmt.Errorf("write checksum: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("flush encoder: %w", err)
	}

	logger.Info("snapshot exported", "entries", len(entries))

	return nil
}

// Import reads a snapshot from r and writes its entries into storage
// as one batch. Fails without writing anything if the checksum or
// format does not match.
func Import(db *storage.Storage, r io.Reader) error {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	if len(raw) < 32 {
		return fmt.Errorf("snapshot truncated: %d bytes", len(raw))
	}

	body, checksum := raw[:len(raw)-32], raw[len(raw)-32:]

	expected := blake3.Sum256(body)
	if !bytes.Equal(checksum, expected[:]) {
		return fmt.Errorf("checksum mismatch")
	}

	entries, err := decodeBody(body)
	if err != nil {
		return err
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{Key: e.key, Value: e.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	logger.Info("snapshot imported", "entries", len(entries))

	return nil
}

// collectEntries iterates the bridge's state prefixes.
func collectEntries(db *storage.Storage) ([]entry, error) {
	var entries []entry

	for _, prefix := range statePrefixes {
		err := db.IteratePrefix(prefix, func(key, value []byte) error {
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)

			valueCopy := make([]byte, len(value))
			copy(valueCopy, value)

			entries = append(entries, entry{key: keyCopy, value: valueCopy})

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// encodeBody serializes the header and entries.
func encodeBody(entries []entry) []byte {
	size := len(magic) + 8
	for _, e := range entries {
		size += 8 + len(e.key) + len(e.value)
	}

	body := make([]byte, 0, size)
	body = append(body, magic...)
	body = binary.LittleEndian.AppendUint32(body, formatVersion)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(entries)))

	for _, e := range entries {
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.key)))
		body = append(body, e.key...)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.value)))
		body = append(body, e.value...)
	}

	return body
}

// decodeBody parses and validates the header and entries.
func decodeBody(body []byte) ([]entry, error) {
	if len(body) < len(magic)+8 {
		return nil, fmt.Errorf("snapshot header truncated")
	}
	if !bytes.Equal(body[:len(magic)], magic) {
		return nil, fmt.Errorf("not a snapshot stream")
	}

	offset := len(magic)
	version := binary.LittleEndian.Uint32(body[offset:])
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	count := binary.LittleEndian.Uint32(body[offset+4:])
	offset += 8

	readChunk := func() ([]byte, error) {
		if offset+4 > len(body) {
			return nil, fmt.Errorf("snapshot entry truncated")
		}
		length := binary.LittleEndian.Uint32(body[offset:])
		offset += 4

		if length > maxEntrySize {
			return nil, fmt.Errorf("snapshot entry too large: %d", length)
		}
		if offset+int(length) > len(body) {
			return nil, fmt.Errorf("snapshot entry truncated")
		}

		chunk := body[offset : offset+int(length)]
		offset += int(length)

		return chunk, nil
	}

	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readChunk()
		if err != nil {
			return nil, err
		}
		value, err := readChunk()
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry{key: key, value: value})
	}

	if offset != len(body) {
		return nil, fmt.Errorf("trailing bytes in snapshot body")
	}

	return entries, nil
}
