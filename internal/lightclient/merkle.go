package lightclient

import (
	"bytes"

	"github.com/zeebo/blake3"
)

// LeafHash hashes an encoded burn record into its Merkle leaf.
func LeafHash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// parentHash combines two sibling hashes. The pair is sorted before
// hashing so the prover does not need to carry direction bits.
func parentHash(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)

	return blake3.Sum256(buf)
}

// foldProof folds a leaf up the proof path to a root.
func foldProof(leaf [32]byte, proof [][32]byte) [32]byte {
	current := leaf
	for _, sibling := range proof {
		current = parentHash(current, sibling)
	}

	return current
}

// VerifyInclusion checks that the encoded record is included under the
// expected root via the given proof path.
func VerifyInclusion(recordData []byte, proof [][32]byte, root [32]byte, maxDepth int) error {
	if len(proof) > maxDepth {
		return ErrProofTooDeep
	}

	if foldProof(LeafHash(recordData), proof) != root {
		return ErrRootMismatch
	}

	return nil
}
