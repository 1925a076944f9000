package domain

import "errors"

var (
	// ErrConnection is a transport-level failure. Recoverable: ingestors
	// reconnect with backoff, it never terminates the process.
	ErrConnection = errors.New("connection error")

	// ErrStaleData means the freshest stored sample is older than the
	// configured staleness threshold. Treated as "no price available".
	ErrStaleData = errors.New("stale market data")

	// ErrRiskLimitExceeded is the kill switch: the daily committed cost has
	// reached the configured ceiling. An expected business rejection.
	ErrRiskLimitExceeded = errors.New("daily risk limit exceeded")

	// ErrPartialFillMismatch means one leg of an all-or-nothing pair filled
	// and the other did not. Real unresolved exposure; never swallowed.
	ErrPartialFillMismatch = errors.New("partial fill mismatch between sides")

	// ErrResolutionAmbiguity means the market's own oracle and our reference
	// price disagree about the outcome. Recorded, never auto-corrected.
	ErrResolutionAmbiguity = errors.New("resolution sources disagree")

	// ErrInvariantViolation indicates broken core state (e.g. a second fire
	// for the same contract). Fatal: the process aborts with a state dump.
	ErrInvariantViolation = errors.New("core invariant violation")

	// ErrLockHeld means another process already holds the single-instance
	// lock. Startup aborts rather than risking duplicate order flow.
	ErrLockHeld = errors.New("instance lock held")

	ErrNotFound     = errors.New("not found")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
