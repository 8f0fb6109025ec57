package bridge

import (
	"encoding/binary"
	"fmt"
)

// Record encoding mirrors the source chain's Borsh layouts: integers are
// little-endian, vectors carry a u32 length prefix, bools are one byte.

// EncodeValidatorSet encodes a roster record.
// Format: u64 version + u32 count + count*[u8; 32] + u8 threshold
func EncodeValidatorSet(vs *ValidatorSet) []byte {
	buf := make([]byte, 0, 8+4+len(vs.Validators)*32+1)
	buf = binary.LittleEndian.AppendUint64(buf, vs.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vs.Validators)))
	for _, v := range vs.Validators {
		buf = append(buf, v[:]...)
	}
	buf = append(buf, vs.Threshold)

	return buf
}

// DecodeValidatorSet decodes a roster record.
func DecodeValidatorSet(data []byte) (*ValidatorSet, error) {
	if len(data) < 8+4+1 {
		return nil, fmt.Errorf("validator set record too short: %d bytes", len(data))
	}

	version := binary.LittleEndian.Uint64(data[0:8])
	count := binary.LittleEndian.Uint32(data[8:12])

	want := 8 + 4 + int(count)*32 + 1
	if len(data) != want {
		return nil, fmt.Errorf("validator set record length %d, want %d", len(data), want)
	}

	validators := make([]PubKey, count)
	offset := 12
	for i := range validators {
		copy(validators[i][:], data[offset:offset+32])
		offset += 32
	}

	return &ValidatorSet{
		Version:    version,
		Validators: validators,
		Threshold:  data[offset],
	}, nil
}

// EncodeVerifiedBurn encodes a verification result record.
// Format: u8 asset + u64 nonce + [u8; 32] user + u64 amount + i64 verified_at + u8 processed
func EncodeVerifiedBurn(vb *VerifiedBurn) []byte {
	buf := make([]byte, 0, 1+8+32+8+8+1)
	buf = append(buf, byte(vb.AssetID))
	buf = binary.LittleEndian.AppendUint64(buf, vb.BurnNonce)
	buf = append(buf, vb.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, vb.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(vb.VerifiedAt))
	if vb.Processed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DecodeVerifiedBurn decodes a verification result record.
func DecodeVerifiedBurn(data []byte) (*VerifiedBurn, error) {
	const size = 1 + 8 + 32 + 8 + 8 + 1
	if len(data) != size {
		return nil, fmt.Errorf("verified burn record length %d, want %d", len(data), size)
	}

	vb := &VerifiedBurn{
		AssetID:    Asset(data[0]),
		BurnNonce:  binary.LittleEndian.Uint64(data[1:9]),
		Amount:     binary.LittleEndian.Uint64(data[41:49]),
		VerifiedAt: int64(binary.LittleEndian.Uint64(data[49:57])),
		Processed:  data[57] == 1,
	}
	copy(vb.User[:], data[9:41])

	return vb, nil
}

// EncodeProcessedBurn encodes a replay guard record.
// Format: u8 asset + u64 nonce + [u8; 32] user + u64 amount + i64 processed_at
func EncodeProcessedBurn(pb *ProcessedBurn) []byte {
	buf := make([]byte, 0, 1+8+32+8+8)
	buf = append(buf, byte(pb.AssetID))
	buf = binary.LittleEndian.AppendUint64(buf, pb.Nonce)
	buf = append(buf, pb.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, pb.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(pb.ProcessedAt))

	return buf
}

// DecodeProcessedBurn decodes a replay guard record.
func DecodeProcessedBurn(data []byte) (*ProcessedBurn, error) {
	const size = 1 + 8 + 32 + 8 + 8
	if len(data) != size {
		return nil, fmt.Errorf("processed burn record length %d, want %d", len(data), size)
	}

	pb := &ProcessedBurn{
		AssetID:     Asset(data[0]),
		Nonce:       binary.LittleEndian.Uint64(data[1:9]),
		Amount:      binary.LittleEndian.Uint64(data[41:49]),
		ProcessedAt: int64(binary.LittleEndian.Uint64(data[49:57])),
	}
	copy(pb.User[:], data[9:41])

	return pb, nil
}

// EncodeMintState encodes a controller state record.
// Format: [u8; 32] authority + [u8; 32] mint + u64 fee + u64 version + u64 count + u64 minted
func EncodeMintState(ms *MintState) []byte {
	buf := make([]byte, 0, 32+32+8*4)
	buf = append(buf, ms.Authority[:]...)
	buf = append(buf, ms.Mint[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, ms.FeePerValidator)
	buf = binary.LittleEndian.AppendUint64(buf, ms.ValidatorSetVersion)
	buf = binary.LittleEndian.AppendUint64(buf, ms.ProcessedBurns)
	buf = binary.LittleEndian.AppendUint64(buf, ms.TotalMinted)

	return buf
}

// DecodeMintState decodes a controller state record.
func DecodeMintState(data []byte) (*MintState, error) {
	const size = 32 + 32 + 8*4
	if len(data) != size {
		return nil, fmt.Errorf("mint state record length %d, want %d", len(data), size)
	}

	ms := &MintState{
		FeePerValidator:     binary.LittleEndian.Uint64(data[64:72]),
		ValidatorSetVersion: binary.LittleEndian.Uint64(data[72:80]),
		ProcessedBurns:      binary.LittleEndian.Uint64(data[80:88]),
		TotalMinted:         binary.LittleEndian.Uint64(data[88:96]),
	}
	copy(ms.Authority[:], data[0:32])
	copy(ms.Mint[:], data[32:64])

	return ms, nil
}
