package journal

import "errors"

var (
	// ErrJournalNotFound is returned when no active change journal exists
	// on the volume and the caller did not ask for one to be created.
	ErrJournalNotFound = errors.New("no active usn journal on volume")

	// ErrJournalIDMismatch is returned when the journal identity changed
	// since the cursor was established, meaning the journal was deleted and
	// recreated. It is terminal for the reader that observes it; a new
	// reader must be opened from a fresh cursor.
	ErrJournalIDMismatch = errors.New("usn journal identity changed since cursor was established")

	// ErrBufferTooSmall is returned after the read buffer was grown to its
	// fixed maximum and the operating system still reported it as too small
	// for the next record.
	ErrBufferTooSmall = errors.New("read buffer exhausted at maximum size")
)
