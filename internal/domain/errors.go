package domain

import "errors"

// Error classes. Engine operations wrap these with fmt.Errorf("%w: ...") so
// callers can classify failures with errors.Is while still seeing the
// specific condition in the message.
var (
	// ErrValidation marks inputs the caller must change before resubmitting:
	// zero price, out-of-range duration, fee above cap, zero fee recipient.
	ErrValidation = errors.New("validation failed")

	// ErrAuthorization marks a caller who is not the owner, seller, or
	// approved operator for the attempted operation.
	ErrAuthorization = errors.New("not authorized")

	// ErrState marks an operation that is invalid in the current lifecycle
	// state: already listed, not in auction, already settled, paused, etc.
	ErrState = errors.New("invalid state")

	// ErrTransfer marks a failed Payment Rail or Ownership Oracle call. It is
	// the only class the caller may treat as transient and resubmit.
	ErrTransfer = errors.New("transfer failed")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld is returned when a per-asset lock is already held.
	ErrLockHeld = errors.New("lock already held")
)
