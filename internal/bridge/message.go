package bridge

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// DomainSeparator binds attestation messages to this bridge deployment.
const DomainSeparator = "XENCAT_X1_BRIDGE_V1"

// rotationDomain prefixes validator rotation approval messages.
const rotationDomain = "VALIDATOR_UPDATE"

// AttestationMessage builds the canonical 32-byte message validators sign
// for a burn.
//
// Format: blake3(DOMAIN || asset_id || version || nonce || amount || user)
//
// The asset id is part of the hash, so a signature produced for one asset
// can never validate a request for another asset, even with identical
// nonce, user and amount. The set version is part of the hash, so a
// rotation invalidates every outstanding signature at once.
func AttestationMessage(asset Asset, version, nonce, amount uint64, user PubKey) [32]byte {
	buf := make([]byte, 0, len(DomainSeparator)+1+8+8+8+32)
	buf = append(buf, DomainSeparator...)
	buf = append(buf, byte(asset))
	buf = binary.LittleEndian.AppendUint64(buf, version)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = append(buf, user[:]...)

	return blake3.Sum256(buf)
}

// RotationMessage builds the canonical 32-byte message current validators
// sign to approve a roster rotation.
//
// Format: blake3("VALIDATOR_UPDATE" || current_version || new_validators || new_threshold)
func RotationMessage(currentVersion uint64, newValidators []PubKey, newThreshold uint8) [32]byte {
	buf := make([]byte, 0, len(rotationDomain)+8+len(newValidators)*32+1)
	buf = append(buf, rotationDomain...)
	buf = binary.LittleEndian.AppendUint64(buf, currentVersion)
	for _, v := range newValidators {
		buf = append(buf, v[:]...)
	}
	buf = append(buf, newThreshold)

	return blake3.Sum256(buf)
}
