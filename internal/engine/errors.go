package engine

import "errors"

var (
	// ErrConflictRequiresUser terminally fails an operation whose conflict
	// needs a human decision; the ConflictRecord is the actionable artifact.
	ErrConflictRequiresUser = errors.New("requires user resolution")

	// ErrInvalidOperationData marks a stored payload that cannot be
	// deserialized; retrying cannot fix malformed data.
	ErrInvalidOperationData = errors.New("invalid operation data")

	// ErrNotCancellable is returned when cancelling anything but a PENDING
	// operation.
	ErrNotCancellable = errors.New("operation cannot be cancelled")

	errDependencyFailed = errors.New("dependency failed")
)
