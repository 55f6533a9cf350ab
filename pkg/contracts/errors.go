package contracts

import "errors"

// Kernel-path and ledger errors. Kernel-path errors are terminal for the
// proposal: they become a committed Deny, never a dropped event.
var (
	// ErrRiskMonotonicity signals that a raw risk computation would decrease
	// the accounted score. The surrounding proposal must be denied and the
	// violation logged; the score is never silently floored.
	ErrRiskMonotonicity = errors.New("risk monotonicity violation")

	// ErrRiskCeiling signals a computed score above the hard accounting cap.
	ErrRiskCeiling = errors.New("risk ceiling exceeded")

	// ErrStaleTip is returned by a ledger append when the caller's view of
	// the previous hash no longer matches the committed tip (a concurrent
	// writer won). Retryable: refresh the tip and append again.
	ErrStaleTip = errors.New("hash chain mismatch: stale tip")

	// ErrChainCorruption is returned by chain verification at the first
	// entry whose hash does not recompute. Fatal for the session: ingestion
	// halts pending external audit and re-anchoring.
	ErrChainCorruption = errors.New("ledger chain corruption")

	// ErrSessionHalted is returned for proposals submitted after chain
	// corruption was detected for the session.
	ErrSessionHalted = errors.New("session halted pending chain audit")
)
