package bridge

import "errors"

// Structural and validation failures. Recoverable by resubmission.
var (
	ErrInvalidAsset       = errors.New("unknown or unsupported asset id")
	ErrAssetNotProvable   = errors.New("asset not served by the proof path")
	ErrZeroAmount         = errors.New("burn amount must be nonzero")
	ErrEmptyAttestations  = errors.New("empty attestation list")
	ErrInvalidThreshold   = errors.New("threshold must be > 0 and <= validator count")
	ErrEmptyValidatorSet  = errors.New("validator set must not be empty")
	ErrTooManyValidators  = errors.New("validator set exceeds maximum size")
	ErrInvalidAttestation = errors.New("attestation fields don't match request parameters")
)

// Security and authorization failures. Never partially applied.
var (
	ErrUnknownValidator         = errors.New("validator not in current set")
	ErrDuplicateValidator       = errors.New("duplicate validator in batch")
	ErrInvalidSignature         = errors.New("signature verification failed")
	ErrInsufficientAttestations = errors.New("not enough valid attestations to meet threshold")
	ErrInsufficientSignatures   = errors.New("insufficient signatures for validator update")
	ErrWrongSetVersion          = errors.New("validator set version mismatch")
	ErrNotAuthority             = errors.New("caller is not the mint authority")
	ErrAssetNotMintable         = errors.New("asset not mintable by this controller")
	ErrUserMismatch             = errors.New("verified burn user mismatch")
	ErrNonceMismatch            = errors.New("verified burn nonce mismatch")
	ErrAssetMismatch            = errors.New("verified burn asset mismatch")
)

// Replay failures. Distinguishable so clients can treat them as
// "already succeeded" rather than "attack detected".
var (
	ErrBurnAlreadyVerified  = errors.New("burn already verified")
	ErrBurnAlreadyProcessed = errors.New("burn already processed")
	ErrBurnNotVerified      = errors.New("no verified burn for key")
)

// Arithmetic failures. Checked arithmetic fails closed.
var ErrOverflow = errors.New("arithmetic overflow")

// Resource failures. Abort the whole operation atomically.
var (
	ErrMissingFeeTarget     = errors.New("missing fee target account for validator")
	ErrFeeTargetMismatch    = errors.New("fee target does not match validator")
	ErrFeeTargetNotWritable = errors.New("fee target account not writable")
)
