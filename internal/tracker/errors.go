package tracker

import "errors"

// Validation errors surfaced synchronously to callers. None of them leave
// any state change behind.
var (
	ErrNonPositiveDelta    = errors.New("manual reading does not increase usage")
	ErrNegativeUsage       = errors.New("usage counter cannot go negative")
	ErrNotLatestEntry      = errors.New("only the most recent manual ledger entry can be edited")
	ErrMachineInactive     = errors.New("machine is not active")
	ErrInvalidTicketStatus = errors.New("unknown ticket status")
)
