package bridge

import "testing"

// TestValidatorSetRoundTrip tests encode/decode of a roster record.
func TestValidatorSetRoundTrip(t *testing.T) {
	set := &ValidatorSet{
		Version:    7,
		Validators: []PubKey{testKey(0x01), testKey(0x02), testKey(0x03)},
		Threshold:  2,
	}

	decoded, err := DecodeValidatorSet(EncodeValidatorSet(set))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Version != set.Version || decoded.Threshold != set.Threshold {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if len(decoded.Validators) != 3 || decoded.Validators[1] != testKey(0x02) {
		t.Fatalf("roster mismatch: %+v", decoded.Validators)
	}
}

// TestDecodeValidatorSetRejectsTruncated tests length validation.
func TestDecodeValidatorSetRejectsTruncated(t *testing.T) {
	set := &ValidatorSet{Version: 1, Validators: []PubKey{testKey(0x01)}, Threshold: 1}
	data := EncodeValidatorSet(set)

	if _, err := DecodeValidatorSet(data[:len(data)-1]); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

// TestVerifiedBurnRoundTrip tests the processed flag survives encoding.
func TestVerifiedBurnRoundTrip(t *testing.T) {
	vb := &VerifiedBurn{
		AssetID:    AssetDGN,
		BurnNonce:  42,
		User:       testKey(0x05),
		Amount:     123_456_789,
		VerifiedAt: 1700000000,
		Processed:  true,
	}

	decoded, err := DecodeVerifiedBurn(EncodeVerifiedBurn(vb))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if *decoded != *vb {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, vb)
	}
}

// TestMintStateRoundTrip tests the controller state record.
func TestMintStateRoundTrip(t *testing.T) {
	ms := &MintState{
		Authority:           testKey(0x0a),
		Mint:                testKey(0x0b),
		FeePerValidator:     DefaultFeePerValidator,
		ValidatorSetVersion: 3,
		ProcessedBurns:      17,
		TotalMinted:         999,
	}

	decoded, err := DecodeMintState(EncodeMintState(ms))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if *decoded != *ms {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, ms)
	}
}
