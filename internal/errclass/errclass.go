// Package errclass defines the sentinel error taxonomy the engine uses to
// decide retry vs. abandon vs. alert behavior at every I/O boundary (§7).
package errclass

import "errors"

var (
	// ErrTransportRetryable marks a transport failure the caller should
	// retry with backoff (timeouts, 5xx, connection resets).
	ErrTransportRetryable = errors.New("transport error: retryable")

	// ErrTransportFatal marks a transport failure that will not succeed on
	// retry (auth failure, malformed request, 4xx other than rate limit).
	ErrTransportFatal = errors.New("transport error: fatal")

	// ErrVenueMinimum marks an order rejected for violating venue precision
	// or minimum-notional constraints (§4.8).
	ErrVenueMinimum = errors.New("venue rejected: below minimum")

	// ErrRuleReject marks a candidate blocked by the deterministic hard-rule
	// gate (§4.4.1).
	ErrRuleReject = errors.New("hard rule: blocked")

	// ErrAIUnavailable marks both the cheap and premium reviewer failing or
	// timing out, triggering the configured fallback behavior (§4.4.2, §4.5).
	ErrAIUnavailable = errors.New("ai reviewer: unavailable")

	// ErrStateInconsistency marks a reconciliation mismatch between local
	// state and the venue's reported positions/orders (§4.7 step 1).
	ErrStateInconsistency = errors.New("state: inconsistent with venue")

	// ErrInvariantViolation marks a defensive check failing inside a pure
	// function that should never receive the input it received.
	ErrInvariantViolation = errors.New("invariant violated")
)

// Is reports whether err wraps target anywhere in its chain; a thin
// re-export so callers in this codebase don't need to import "errors"
// just to check classification.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
