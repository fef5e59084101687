package usn

import "fmt"

// ParseError reports a single change record whose bytes are inconsistent
// with its declared version or length. It carries enough position context to
// diagnose which record of a buffer was malformed.
type ParseError struct {
	// Offset is the byte offset of the record within the buffer it was
	// decoded from.
	Offset int

	// Version is the major version tag read from the record header, or 0
	// if the header itself could not be read.
	Version uint16

	// Reason describes the inconsistency.
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed change record at offset %d (version %d): %s",
		e.Offset, e.Version, e.Reason)
}
