package attest

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"X1Bridge/internal/bridge"
	"X1Bridge/internal/logger"
)

// Requester sends a signing request to one validator and returns its
// raw response.
type Requester interface {
	Request(ctx context.Context, validator bridge.PubKey, payload []byte) ([]byte, error)
}

// AggregateReceipt is the compact proof that a quorum signed: one BLS
// aggregate plus a bitmap of roster indices.
type AggregateReceipt struct {
	Signature  []byte
	Bitmap     []byte
	PublicKeys [][]byte
}

// Collector fans a signing request out to the roster and assembles the
// responses into a submission-ready attestation batch.
type Collector struct {
	transport Requester
	set       bridge.ValidatorSet
}

// NewCollector creates a collector over the given roster snapshot.
func NewCollector(transport Requester, set bridge.ValidatorSet) *Collector {
	return &Collector{transport: transport, set: set}
}

// Collect requests attestations from every validator in parallel and
// returns a batch in roster order, plus a BLS aggregate receipt over
// the responders. Fails if fewer than the roster threshold respond
// with valid signatures.
func (c *Collector) Collect(ctx context.Context, asset bridge.Asset, nonce, amount uint64, user bridge.PubKey) (*bridge.BurnAttestationRequest, *AggregateReceipt, error) {
	req := &SignRequest{
		AssetID:             asset,
		ValidatorSetVersion: c.set.Version,
		BurnNonce:           nonce,
		Amount:              amount,
		User:                user,
	}
	payload := EncodeSignRequest(req)
	message := bridge.AttestationMessage(asset, c.set.Version, nonce, amount, user)

	responses := make([]*SignResponse, len(c.set.Validators))

	var wg sync.WaitGroup
	for i, validator := range c.set.Validators {
		wg.Add(1)
		go func(i int, validator bridge.PubKey) {
			defer wg.Done()

			raw, err := c.transport.Request(ctx, validator, payload)
			if err != nil {
				logger.Debug("attestation request failed", "validator", fmt.Sprintf("%x", validator[:8]), "error", err)
				return
			}

			resp, err := DecodeSignResponse(raw)
			if err != nil {
				logger.Warn("malformed attestation response", "validator", fmt.Sprintf("%x", validator[:8]), "error", err)
				return
			}

			// The response must come from the validator we asked, with a
			// signature that actually verifies. Anything else is dropped.
			if resp.Validator != validator {
				return
			}
			if !ed25519.Verify(validator[:], message[:], resp.Signature[:]) {
				logger.Warn("invalid attestation signature", "validator", fmt.Sprintf("%x", validator[:8]))
				return
			}
			if !VerifyBLS(resp.BLSSignature[:], message[:], resp.BLSPublicKey[:]) {
				logger.Warn("invalid bls attestation signature", "validator", fmt.Sprintf("%x", validator[:8]))
				return
			}

			responses[i] = resp
		}(i, validator)
	}
	wg.Wait()

	attestations := make([]bridge.Attestation, 0, len(responses))
	indices := make([]int, 0, len(responses))
	blsSigs := make([][]byte, 0, len(responses))
	blsPubs := make([][]byte, 0, len(responses))

	for i, resp := range responses {
		if resp == nil {
			continue
		}

		attestations = append(attestations, bridge.Attestation{
			Validator: resp.Validator,
			Signature: resp.Signature,
			Timestamp: resp.Timestamp,
		})
		indices = append(indices, i)
		blsSigs = append(blsSigs, resp.BLSSignature[:])
		blsPubs = append(blsPubs, resp.BLSPublicKey[:])
	}

	if len(attestations) < int(c.set.Threshold) {
		return nil, nil, fmt.Errorf("collected %d attestations, need %d", len(attestations), c.set.Threshold)
	}

	aggregate, err := AggregateSignatures(blsSigs)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate signatures: %w", err)
	}
	if !VerifyAggregated(aggregate, message[:], blsPubs) {
		return nil, nil, fmt.Errorf("aggregate verification failed")
	}

	receipt := &AggregateReceipt{
		Signature:  aggregate,
		Bitmap:     BuildSignerBitmap(indices, len(c.set.Validators)),
		PublicKeys: blsPubs,
	}

	logger.Info("attestations collected",
		"asset", asset.String(),
		"nonce", nonce,
		"signers", len(attestations),
		"roster", len(c.set.Validators),
	)

	return &bridge.BurnAttestationRequest{
		AssetID:             asset,
		BurnNonce:           nonce,
		User:                user,
		Amount:              amount,
		ValidatorSetVersion: c.set.Version,
		Attestations:        attestations,
	}, receipt, nil
}
