package property

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrTerminalState         = errors.New("workflow already finalized for this epoch")
	ErrInsufficientApprovals = errors.New("at least 2 approvals are required")
	ErrSignerConfigMissing   = errors.New("ledger signer config missing")
	ErrLedgerWriteFailed     = errors.New("ledger write failed")
	ErrLedgerUnavailable     = errors.New("ledger unavailable")
	ErrLedgerMismatch        = errors.New("ledger owner mismatch")
	ErrNoLedgerOwner         = errors.New("ledger has no owner for hash")
	ErrNotRegistered         = errors.New("property not registered on ledger")
	ErrNotOwner              = errors.New("wallet is not the ledger owner")
	ErrCodeExpired           = errors.New("transfer code expired")
	ErrCodeUsed              = errors.New("transfer code already used")
	ErrCodeMismatch          = errors.New("transfer code does not match new owner wallet")
	ErrCodeSpaceExhausted    = errors.New("could not allocate a unique transfer code")
	ErrConflict              = errors.New("concurrent modification")
	ErrDuplicate             = errors.New("already exists")
)

// Attempt is one ledger entrypoint tried during a write.
type Attempt struct {
	Entrypoint string
	Err        error
}

// LedgerWriteFailedError reports that every registration entrypoint failed.
// The record is left untouched and the call may be retried.
type LedgerWriteFailedError struct {
	Attempts []Attempt
}

func (e *LedgerWriteFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrLedgerWriteFailed.Error() + ": no entrypoints configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Entrypoint, a.Err))
	}
	return ErrLedgerWriteFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *LedgerWriteFailedError) Unwrap() []error {
	errs := []error{ErrLedgerWriteFailed}
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// LedgerMismatchError reports that the ledger's owner differs from the expected wallet.
type LedgerMismatchError struct {
	Expected string
	Found    string
}

func (e *LedgerMismatchError) Error() string {
	return fmt.Sprintf("%v: expected %s, found %s", ErrLedgerMismatch, e.Expected, e.Found)
}

func (e *LedgerMismatchError) Unwrap() error { return ErrLedgerMismatch }

// Class groups errors by what the caller should do next.
type Class string

const (
	ClassNone     Class = ""
	ClassInput    Class = "input"     // caller must fix the request
	ClassNotFound Class = "not_found" // unknown hash or code
	ClassTerminal Class = "terminal"  // will never succeed as asked
	ClassRetry    Class = "retry"     // transient; retry later
	ClassAdmin    Class = "admin"     // operator must fix configuration
	ClassInternal Class = "internal"
)

// Classify maps err onto the caller-facing error classes.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrSignerConfigMissing):
		return ClassAdmin
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCodeUsed):
		return ClassTerminal
	case errors.Is(err, ErrLedgerWriteFailed),
		errors.Is(err, ErrLedgerUnavailable),
		errors.Is(err, ErrLedgerMismatch),
		errors.Is(err, ErrNoLedgerOwner),
		errors.Is(err, ErrCodeSpaceExhausted),
		errors.Is(err, ErrConflict):
		return ClassRetry
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientApprovals),
		errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrNotRegistered),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrDuplicate):
		return ClassInput
	}
	return ClassInternal
}

// Retryable reports whether re-invoking the same call later may succeed.
func Retryable(err error) bool {
	return Classify(err) == ClassRetry
}
