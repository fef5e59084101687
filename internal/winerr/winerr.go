// Package winerr holds the Windows system error codes surfaced by the
// journal and MFT control operations, as plain numeric constants so the
// packages mapping them compile and test on any platform.
package winerr

import (
	"errors"
	"syscall"
)

// System error codes returned through DeviceIoControl.
const (
	AccessDenied            = 5
	HandleEOF               = 38
	InsufficientBuffer      = 122
	MoreData                = 234
	JournalDeleteInProgress = 1178
	JournalNotActive        = 1179
	JournalEntryDeleted     = 1181
)

// Is reports whether err carries the given system error code.
func Is(err error, code uint32) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno) == code
	}

	return false
}
