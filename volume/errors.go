package volume

import "errors"

var (
	// ErrNotElevated is returned when the calling process lacks the
	// administrative rights required for change journal operations.
	ErrNotElevated = errors.New("administrator privileges required")

	// ErrAccessDenied is returned when the operating system refuses access
	// to the volume device or one of its control operations.
	ErrAccessDenied = errors.New("volume access denied")

	// ErrInvalidMountPoint is returned when a mount point does not resolve
	// to a volume device.
	ErrInvalidMountPoint = errors.New("invalid mount point")
)
