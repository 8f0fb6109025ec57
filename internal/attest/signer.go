package attest

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	"X1Bridge/internal/bridge"
)

// SignRequest asks a validator to attest one burn under a specific
// roster version.
type SignRequest struct {
	AssetID             bridge.Asset
	ValidatorSetVersion uint64
	BurnNonce           uint64
	Amount              uint64
	User                bridge.PubKey
}

// SignResponse is a validator's attestation: the ed25519 signature the
// bridge verifies, plus a BLS signature for aggregate receipts.
type SignResponse struct {
	Validator    bridge.PubKey
	Signature    bridge.Signature
	Timestamp    int64
	BLSPublicKey [BLSPublicKeySize]byte
	BLSSignature [BLSSignatureSize]byte
}

const (
	signRequestSize  = 1 + 8 + 8 + 8 + 32
	signResponseSize = 32 + 64 + 8 + BLSPublicKeySize + BLSSignatureSize
)

// EncodeSignRequest encodes a request for the wire.
func EncodeSignRequest(req *SignRequest) []byte {
	buf := make([]byte, 0, signRequestSize)
	buf = append(buf, byte(req.AssetID))
	buf = binary.LittleEndian.AppendUint64(buf, req.ValidatorSetVersion)
	buf = binary.LittleEndian.AppendUint64(buf, req.BurnNonce)
	buf = binary.LittleEndian.AppendUint64(buf, req.Amount)
	buf = append(buf, req.User[:]...)

	return buf
}

// DecodeSignRequest decodes a wire request.
func DecodeSignRequest(data []byte) (*SignRequest, error) {
	if len(data) != signRequestSize {
		return nil, fmt.Errorf("sign request length %d, want %d", len(data), signRequestSize)
	}

	req := &SignRequest{
		AssetID:             bridge.Asset(data[0]),
		ValidatorSetVersion: binary.LittleEndian.Uint64(data[1:9]),
		BurnNonce:           binary.LittleEndian.Uint64(data[9:17]),
		Amount:              binary.LittleEndian.Uint64(data[17:25]),
	}
	copy(req.User[:], data[25:57])

	return req, nil
}

// EncodeSignResponse encodes a response for the wire.
func EncodeSignResponse(resp *SignResponse) []byte {
	buf := make([]byte, 0, signResponseSize)
	buf = append(buf, resp.Validator[:]...)
	buf = append(buf, resp.Signature[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(resp.Timestamp))
	buf = append(buf, resp.BLSPublicKey[:]...)
	buf = append(buf, resp.BLSSignature[:]...)

	return buf
}

// DecodeSignResponse decodes a wire response.
func DecodeSignResponse(data []byte) (*SignResponse, error) {
	if len(data) != signResponseSize {
		return nil, fmt.Errorf("sign response length %d, want %d", len(data), signResponseSize)
	}

	resp := &SignResponse{
		Timestamp: int64(binary.LittleEndian.Uint64(data[96:104])),
	}
	copy(resp.Validator[:], data[0:32])
	copy(resp.Signature[:], data[32:96])
	copy(resp.BLSPublicKey[:], data[104:104+BLSPublicKeySize])
	copy(resp.BLSSignature[:], data[104+BLSPublicKeySize:])

	return resp, nil
}

// BurnChecker is the validator's view of the source chain. A signer
// only attests burns its checker confirms.
type BurnChecker interface {
	CheckBurn(asset bridge.Asset, nonce uint64, user bridge.PubKey, amount uint64) error
}

// Signer is the validator-side attestation service.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     bridge.PubKey
	bls     *BLSKeyPair
	checker BurnChecker
	now     func() time.Time
}

// NewSigner creates a signer with a BLS key derived from the ed25519
// identity.
func NewSigner(priv ed25519.PrivateKey, checker BurnChecker) (*Signer, error) {
	bls, err := DeriveFromED25519(priv)
	if err != nil {
		return nil, fmt.Errorf("derive bls key: %w", err)
	}

	s := &Signer{priv: priv, bls: bls, checker: checker, now: time.Now}
	copy(s.pub[:], priv.Public().(ed25519.PublicKey))

	return s, nil
}

// PublicKey returns the signer's validator identity.
func (s *Signer) PublicKey() bridge.PubKey {
	return s.pub
}

// SignBurn checks the burn against the source chain and signs the
// canonical attestation message.
func (s *Signer) SignBurn(req *SignRequest) (*SignResponse, error) {
	if _, err := bridge.AssetFromByte(byte(req.AssetID)); err != nil {
		return nil, err
	}

	if s.checker != nil {
		if err := s.checker.CheckBurn(req.AssetID, req.BurnNonce, req.User, req.Amount); err != nil {
			return nil, fmt.Errorf("burn check: %w", err)
		}
	}

	message := bridge.AttestationMessage(req.AssetID, req.ValidatorSetVersion, req.BurnNonce, req.Amount, req.User)

	resp := &SignResponse{
		Validator: s.pub,
		Timestamp: s.now().Unix(),
	}
	copy(resp.Signature[:], ed25519.Sign(s.priv, message[:]))
	copy(resp.BLSPublicKey[:], s.bls.PublicKeyBytes())
	copy(resp.BLSSignature[:], s.bls.Sign(message[:]))

	return resp, nil
}

// Handle is the wire-level entry point: decode, sign, encode.
func (s *Signer) Handle(payload []byte) ([]byte, error) {
	req, err := DecodeSignRequest(payload)
	if err != nil {
		return nil, err
	}

	resp, err := s.SignBurn(req)
	if err != nil {
		return nil, err
	}

	return EncodeSignResponse(resp), nil
}
