package models

import "errors"

// Domain error taxonomy. Services wrap these with fmt.Errorf("...: %w", err)
// so callers can classify with errors.Is.
var (
	// ErrNotFound: the resource or grant does not exist (or is not visible
	// to the caller, to avoid leaking existence).
	ErrNotFound = errors.New("not found")

	// ErrForbidden: authorization failed. Covers expired grants,
	// insufficient role, bad password and bad or rotated tokens.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict: the mutation contradicts current state (cyclic move,
	// move into self, already in the requested state).
	ErrConflict = errors.New("conflict")

	// ErrTransactionFailed: an infrastructure-level commit failure. The
	// whole batch was rolled back.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrQuotaExceeded: the owner's storage quota cannot absorb the new
	// content.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
