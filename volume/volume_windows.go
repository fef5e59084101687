//go:build windows

package volume

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sys/windows"
)

// Volume is an open handle to a volume device. It satisfies the Device
// interfaces of the journal and mft packages.
type Volume struct {
	handle windows.Handle

	// DriveLetter is the uppercase drive letter the volume was opened by,
	// or 0 when it was opened through a mount point.
	DriveLetter byte
}

// Open opens the volume device behind a drive letter, e.g. 'C'. Change
// journal operations require an elevated process; without elevation this
// fails with [ErrNotElevated] before touching the device.
func Open(driveLetter byte) (*Volume, error) {
	if err := requireElevation(); err != nil {
		return nil, err
	}

	letter := upperLetter(driveLetter)
	if letter < 'A' || letter > 'Z' {
		return nil, fmt.Errorf("drive letter %q: %w", string(driveLetter), ErrInvalidMountPoint)
	}

	// Volume handles for journal operations are opened as \\.\X:.
	handle, err := openDevice(`\\.\` + string(letter) + `:`)
	if err != nil {
		return nil, err
	}

	return &Volume{handle: handle, DriveLetter: letter}, nil
}

// OpenMountPoint opens the volume device mounted at a path, e.g. `D:\` or a
// mounted folder.
func OpenMountPoint(mountPoint string) (*Volume, error) {
	if err := requireElevation(); err != nil {
		return nil, err
	}

	// The mount point query requires a trailing separator.
	if !strings.HasSuffix(mountPoint, `\`) {
		mountPoint += `\`
	}

	mountU16, err := windows.UTF16PtrFromString(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("mount point %q: %w", mountPoint, ErrInvalidMountPoint)
	}

	var guidPath [64]uint16
	if err := windows.GetVolumeNameForVolumeMountPoint(mountU16, &guidPath[0], uint32(len(guidPath))); err != nil {
		slog.Warn("Failed resolving mount point to volume", "mountPoint", mountPoint, "err", err)

		return nil, fmt.Errorf("mount point %q: %w", mountPoint, ErrInvalidMountPoint)
	}

	// The GUID path carries a trailing separator the device open rejects.
	devicePath := strings.TrimSuffix(windows.UTF16ToString(guidPath[:]), `\`)
	slog.Debug("Resolved mount point to volume", "mountPoint", mountPoint, "volume", devicePath)

	handle, err := openDevice(devicePath)
	if err != nil {
		return nil, err
	}

	return &Volume{handle: handle}, nil
}

func openDevice(path string) (windows.Handle, error) {
	pathU16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return windows.InvalidHandle, fmt.Errorf("device path %q: %w", path, ErrInvalidMountPoint)
	}

	handle, err := windows.CreateFile(
		pathU16,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		if err == windows.ERROR_ACCESS_DENIED {
			return windows.InvalidHandle, fmt.Errorf("open %s: %w", path, ErrAccessDenied)
		}

		return windows.InvalidHandle, fmt.Errorf("open %s: %w", path, err)
	}

	return handle, nil
}

// Control issues one device control request against the volume and returns
// the number of bytes written into out. The raw OS error is returned
// unwrapped so callers can map the system error code.
func (v *Volume) Control(code uint32, in, out []byte) (uint32, error) {
	var inPtr, outPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	if len(out) > 0 {
		outPtr = &out[0]
	}

	var returned uint32
	err := windows.DeviceIoControl(v.handle, code, inPtr, uint32(len(in)), outPtr, uint32(len(out)), &returned, nil)
	if err != nil {
		return 0, err
	}

	return returned, nil
}

// Close releases the device handle. The volume must not be used afterwards;
// readers and passes built on it fail on their next OS call.
func (v *Volume) Close() error {
	if v.handle == windows.InvalidHandle {
		return nil
	}

	err := windows.CloseHandle(v.handle)
	v.handle = windows.InvalidHandle
	if err != nil {
		return fmt.Errorf("close volume handle: %w", err)
	}

	return nil
}

func upperLetter(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}

	return b
}
