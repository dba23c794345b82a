package conversation

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrNotFound indicates the conversation does not exist or is not
	// owned by the caller. The two cases are deliberately
	// indistinguishable so ownership cannot be probed.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmptyOwner indicates an operation was attempted without an owner id.
	ErrEmptyOwner = errors.New("owner id is required")
)
