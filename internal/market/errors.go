package market

import "errors"

// Failure taxonomy for order submission and settlement. Callers match with
// errors.Is; the HTTP layer maps these to status codes. Every failure is
// raised before commit — a rejected operation leaves no partial effect.
var (
	// ErrInvalidInput is returned for malformed orders: bad side, bad
	// outcome, non-positive quantity, or a price outside 0–100.
	ErrInvalidInput = errors.New("market: invalid input")

	// ErrEventNotFound is returned when the order names an unknown event.
	ErrEventNotFound = errors.New("market: event not found")

	// ErrUserNotFound is returned when the order names an unknown account.
	ErrUserNotFound = errors.New("market: user not found")

	// ErrEventResolved is returned when trading or settling an event that
	// has already resolved.
	ErrEventResolved = errors.New("market: event already resolved")

	// ErrConflictingOutcome is returned when the user already holds the
	// opposite outcome on this event. The whole order is rejected; nothing
	// is netted.
	ErrConflictingOutcome = errors.New("market: conflicting outcome held")

	// ErrInsufficientFunds is returned when the order's unmatched remainder
	// would overdraw the account.
	ErrInsufficientFunds = errors.New("market: insufficient funds")

	// ErrNotYetEligible is returned when settlement is requested before the
	// eligibility window has elapsed.
	ErrNotYetEligible = errors.New("market: settlement window not yet open")

	// ErrOracleUnavailable is returned when the oracle cannot report a
	// final result. Not fatal: the event stays unresolved and is retried
	// on the next sweep.
	ErrOracleUnavailable = errors.New("market: match result unavailable")
)
