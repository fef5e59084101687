package pathing

import "errors"

var (
	// ErrLinkNotFound is returned when no parent link is known for a file
	// reference.
	ErrLinkNotFound = errors.New("no parent link for file reference")

	// ErrStaleReference is returned when the record slot of a file
	// reference was reused: the index is known but the live sequence number
	// no longer matches, so the original file is gone.
	ErrStaleReference = errors.New("stale file reference")

	// ErrCycleDetected is returned when a parent-chain walk exceeds the
	// maximum plausible nesting depth without reaching the volume root.
	ErrCycleDetected = errors.New("cycle detected in parent chain")
)
