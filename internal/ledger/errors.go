package ledger

import "errors"

// Account errors
var (
	ErrInvalidAccountCode = errors.New("invalid account code")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrUnknownAccount     = errors.New("account code is not in the chart of accounts")
)

// Entry errors
var (
	ErrInvalidSide        = errors.New("invalid debit/credit side")
	ErrNonPositiveLine    = errors.New("line amount must be positive")
	ErrTooFewLines        = errors.New("entry needs at least two lines")
	ErrEntryNotBalanced   = errors.New("entry debits and credits do not balance")
	ErrMissingReference   = errors.New("entry reference is required")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrAlreadyReversed    = errors.New("entry has already been reversed")
	ErrReversalOfReversal = errors.New("a reversal entry cannot be reversed")
	ErrUnknownEvent       = errors.New("no posting rule for event")
)
