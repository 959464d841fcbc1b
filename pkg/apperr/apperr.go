package apperr

import "errors"

// Sentinel errors shared across services and handlers. Wrap with %w and
// match with errors.Is.
var (
	// ErrValidation is bad caller input (e.g. credits < 1). Not retried.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication is a missing/invalid bearer credential or a
	// notification that failed signature verification.
	ErrAuthentication = errors.New("authentication error")
	// ErrUpstream is a provider API failure during payment creation or
	// status re-fetch. The local transaction stays pending.
	ErrUpstream = errors.New("upstream provider error")
	// ErrNotFound is a missing record, including notifications that
	// reference no known transaction.
	ErrNotFound = errors.New("not found")
	// ErrLedgerMutation is a failed balance credit after the transaction
	// was already marked completed. Must never be swallowed: the user has
	// paid and not been credited.
	ErrLedgerMutation = errors.New("ledger mutation error")
)

func IsValidation(err error) bool     { return errors.Is(err, ErrValidation) }
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }
func IsUpstream(err error) bool       { return errors.Is(err, ErrUpstream) }
func IsNotFound(err error) bool       { return errors.Is(err, ErrNotFound) }
func IsLedgerMutation(err error) bool { return errors.Is(err, ErrLedgerMutation) }
