package domain

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Validation errors
// are terminal: retrying them would not change the outcome.

var (
	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInvalidState      = errors.New("reservation already finalized")
	ErrUnknownDifficulty = errors.New("unknown game difficulty")

	// Store errors
	ErrVersionConflict = errors.New("account version conflict")
	ErrUnavailable     = errors.New("account temporarily unavailable")

	// Paid-action errors
	ErrActionInProgress = errors.New("another paid action is already running for this user")
)

// CooldownError is returned when a gated operation is claimed too early.
// Remaining is how long until the operation becomes available again.
type CooldownError struct {
	Remaining time.Duration
}

// Error implements the error interface.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: %s remaining", e.Remaining.Round(time.Second))
}
