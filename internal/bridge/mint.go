package bridge

import (
	"fmt"
	"sync"
	"time"

	"X1Bridge/internal/logger"
	"X1Bridge/internal/storage"
	"X1Bridge/internal/token"
)

const (
	// eventBuffer is the mint event channel capacity.
	eventBuffer = 1024
)

// Controller consumes verified burns for exactly one asset and turns
// each into exactly one mint plus fee distribution. The asset binding
// is permanent: a controller never mints another asset's burns.
//
// Each burn moves from verified to minted exactly once, and minted is
// terminal. The create-once replay record and the token movements
// commit in one atomic batch, so a failed mint leaves nothing behind
// and a replayed mint fails without minting.
type Controller struct {
	mu     sync.Mutex
	asset  Asset
	db     *storage.Storage
	burns  *BurnStore
	ledger *token.Ledger
	state  MintState
	events chan MintEvent
	now    func() time.Time
}

// InitController creates the controller state for an asset.
// Fails if the asset's state already exists.
func InitController(db *storage.Storage, ledger *token.Ledger, burns *BurnStore, asset Asset, authority, mint PubKey, setVersion uint64) (*Controller, error) {
	state := MintState{
		Authority:           authority,
		Mint:                mint,
		FeePerValidator:     DefaultFeePerValidator,
		ValidatorSetVersion: setVersion,
	}

	if err := db.CreateOnce(mintStateKey(asset), EncodeMintState(&state)); err != nil {
		return nil, fmt.Errorf("store mint state: %w", err)
	}

	return newController(db, ledger, burns, asset, state), nil
}

// OpenController loads an existing controller state.
func OpenController(db *storage.Storage, ledger *token.Ledger, burns *BurnStore, asset Asset) (*Controller, error) {
	data, err := db.Get(mintStateKey(asset))
	if err != nil {
		return nil, fmt.Errorf("load mint state: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("no mint state for %s", asset)
	}

	state, err := DecodeMintState(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint state: %w", err)
	}

	return newController(db, ledger, burns, asset, *state), nil
}

func newController(db *storage.Storage, ledger *token.Ledger, burns *BurnStore, asset Asset, state MintState) *Controller {
	return &Controller{
		asset:  asset,
		db:     db,
		burns:  burns,
		ledger: ledger,
		state:  state,
		events: make(chan MintEvent, eventBuffer),
		now:    time.Now,
	}
}

// Asset returns the asset this controller is permanently bound to.
func (c *Controller) Asset() Asset {
	return c.asset
}

// State returns a copy of the current mint state.
func (c *Controller) State() MintState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Events returns the mint event stream, ordered by completion.
func (c *Controller) Events() <-chan MintEvent {
	return c.events
}

// SetFee updates the per-validator fee. Authority only.
func (c *Controller) SetFee(authority PubKey, fee uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if authority != c.state.Authority {
		return fmt.Errorf("%w: fee update", ErrNotAuthority)
	}

	next := c.state
	next.FeePerValidator = fee

	if err := c.db.Set(mintStateKey(c.asset), EncodeMintState(&next)); err != nil {
		return fmt.Errorf("store mint state: %w", err)
	}

	c.state = next

	return nil
}

// SetValidatorSetVersion re-pins the roster version used for fee
// distribution after a rotation. Authority only.
func (c *Controller) SetValidatorSetVersion(authority PubKey, version uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if authority != c.state.Authority {
		return fmt.Errorf("%w: version update", ErrNotAuthority)
	}

	next := c.state
	next.ValidatorSetVersion = version

	if err := c.db.Set(mintStateKey(c.asset), EncodeMintState(&next)); err != nil {
		return fmt.Errorf("store mint state: %w", err)
	}

	c.state = next

	return nil
}

// Mint consumes a verified burn and mints its amount to the user.
//
// The amount is sourced exclusively from the verified record, never
// from caller input. The supplied roster snapshot must match the pinned
// version before anything moves, so fee distribution never runs against
// a stale roster. The mint credit, fee transfers, processed flag,
// replay record and counters commit as one batch.
func (c *Controller) Mint(asset Asset, nonce uint64, user PubKey, snapshot ValidatorSet, feeTargets []FeeTarget) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if asset != c.asset {
		return 0, fmt.Errorf("%w: controller mints %s", ErrAssetNotMintable, c.asset)
	}

	vb, err := c.burns.GetVerified(asset, user, nonce)
	if err != nil {
		return 0, err
	}
	if vb.Processed {
		return 0, ErrBurnAlreadyProcessed
	}

	// Key-confusion defense: the record's own fields must match the key
	// it was looked up under.
	if vb.User != user {
		return 0, ErrUserMismatch
	}
	if vb.BurnNonce != nonce {
		return 0, ErrNonceMismatch
	}
	if vb.AssetID != asset {
		return 0, ErrAssetMismatch
	}

	if snapshot.Version != c.state.ValidatorSetVersion {
		return 0, fmt.Errorf("%w: snapshot %d, pinned %d",
			ErrWrongSetVersion, snapshot.Version, c.state.ValidatorSetVersion)
	}

	processed, err := c.burns.HasProcessed(asset, nonce, user)
	if err != nil {
		return 0, err
	}
	if processed {
		return 0, ErrBurnAlreadyProcessed
	}

	feeOps, err := c.feeOps(user, &snapshot, feeTargets)
	if err != nil {
		return 0, err
	}

	ops := make([]token.Op, 0, 1+len(feeOps))
	ops = append(ops, token.Op{
		Kind:      token.OpMint,
		Mint:      c.state.Mint,
		Authority: c.state.Authority,
		To:        user,
		Amount:    vb.Amount,
	})
	ops = append(ops, feeOps...)

	// Informational counters saturate instead of failing closed:
	// losing precision is preferable to blocking a valid mint.
	next := c.state
	next.ProcessedBurns = saturatingAdd(next.ProcessedBurns, 1)
	next.TotalMinted = saturatingAdd(next.TotalMinted, vb.Amount)

	extra := c.burns.markProcessedKVs(vb, c.now().Unix())
	extra = append(extra, storage.KeyValue{
		Key:   mintStateKey(c.asset),
		Value: EncodeMintState(&next),
	})

	if err := c.ledger.Apply(ops, extra); err != nil {
		return 0, err
	}

	c.state = next

	event := MintEvent{AssetID: asset, Nonce: nonce, User: user, Amount: vb.Amount}
	c.emit(event)

	logger.Info("minted from verified burn",
		"asset", asset.String(),
		"nonce", nonce,
		"amount", vb.Amount,
		"total_minted", next.TotalMinted,
	)

	return vb.Amount, nil
}

// feeOps builds the fee distribution transfers: a fixed fee from the
// minting user to one caller-supplied target per validator, in roster
// order. Any mismatch aborts the whole mint; partial fee payment is
// never observable.
func (c *Controller) feeOps(user PubKey, snapshot *ValidatorSet, targets []FeeTarget) ([]token.Op, error) {
	fee := c.state.FeePerValidator
	if fee == 0 {
		return nil, nil
	}

	count := uint64(len(snapshot.Validators))
	if count > 0 && fee > ^uint64(0)/count {
		return nil, fmt.Errorf("%w: total fee", ErrOverflow)
	}

	ops := make([]token.Op, 0, len(snapshot.Validators))

	for i, validator := range snapshot.Validators {
		if i >= len(targets) {
			return nil, fmt.Errorf("%w: index %d", ErrMissingFeeTarget, i)
		}

		target := targets[i]
		if target.Account != validator {
			return nil, fmt.Errorf("%w: index %d", ErrFeeTargetMismatch, i)
		}
		if !target.Writable {
			return nil, fmt.Errorf("%w: index %d", ErrFeeTargetNotWritable, i)
		}

		ops = append(ops, token.Op{
			Kind:   token.OpTransfer,
			Mint:   c.state.Mint,
			From:   user,
			To:     target.Account,
			Amount: fee,
		})
	}

	return ops, nil
}

// emit delivers a mint event without blocking the mint. If the buffer
// is full the oldest pending event is dropped.
func (c *Controller) emit(event MintEvent) {
	select {
	case c.events <- event:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- event:
		default:
		}
	}
}

// saturatingAdd returns a + b, capping at the maximum uint64.
func saturatingAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
