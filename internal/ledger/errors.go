package ledger

import "errors"

// Error kinds returned by the ledger. Callers classify with errors.Is; the
// wrapped message carries the detail. Every one of them leaves the ledger
// exactly as it was before the call.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)
