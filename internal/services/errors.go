package services

import "errors"

// Sentinel errors for the duel lifecycle. Callers classify failures with
// errors.Is; context is attached at the call site with fmt.Errorf and %w.
var (
	// ErrValidation rejects malformed input (non-positive bet amount etc).
	ErrValidation = errors.New("validation failed")

	// ErrDeposit covers unconfirmed, underfunded or already-consumed deposit
	// transactions.
	ErrDeposit = errors.New("deposit rejected")

	// ErrStateConflict means the duel was not in the expected status, or a
	// concurrent writer won the conditional update.
	ErrStateConflict = errors.New("duel state conflict")

	// ErrUnauthorized means the caller is not allowed to perform the action
	// on this duel.
	ErrUnauthorized = errors.New("not authorized")

	// ErrChainCall wraps a failed on-chain program invocation.
	ErrChainCall = errors.New("chain call failed")

	// ErrOracleUnavailable means no price provider could serve the pair.
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrNotFound means the duel (or related record) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPayout wraps a failed on-chain payout; the duel stays RESOLVED and
	// the claim can be retried.
	ErrPayout = errors.New("payout failed")

	// ErrMissingWallet means a player has no linked payout address.
	ErrMissingWallet = errors.New("player has no wallet address")
)
