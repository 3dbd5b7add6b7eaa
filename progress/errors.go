package progress

import "errors"

var (
	// ErrUnknownSection is returned when a visit names a section the catalog
	// does not carry. Callers should log and skip.
	ErrUnknownSection = errors.New("unknown section")

	// ErrUnknownUser is returned when no progress state exists for the user.
	ErrUnknownUser = errors.New("unknown user")

	// ErrIncompleteProgress rejects an acknowledgement from a user who is not
	// at 100% completion or whose role is not tracked.
	ErrIncompleteProgress = errors.New("training not complete")

	// ErrAlreadyAcknowledged rejects a second acknowledgement. The flag is
	// one-way; the first submission wins permanently.
	ErrAlreadyAcknowledged = errors.New("already acknowledged")

	// ErrStoreUnavailable wraps infrastructure failures from the persistent
	// store. The engine never retries; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflict means the store's conditional update detected a conflicting
	// concurrent write. The whole operation is safe to retry.
	ErrConflict = errors.New("concurrent update conflict")
)
