//go:build windows

package volume

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wangfu91/usn-journal-go/usn"
)

var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileByID = modkernel32.NewProc("OpenFileById")
)

// FILE_INFO_BY_HANDLE_CLASS value selecting FILE_NAME_INFO.
const fileNameInfoClass = 2

// fileIDDescriptor is FILE_ID_DESCRIPTOR with the 64-bit FileId arm of its
// union; the trailing padding covers the 128-bit arm.
type fileIDDescriptor struct {
	size   uint32
	idType uint32 // 0 = FileIdType
	fileID uint64
	_      [8]byte
}

// PathByID resolves a file reference to its full path by opening the file
// through the volume handle and querying its name. It is the live fallback
// for references absent from an enumerated link table, at the cost of two
// extra handle operations per call.
//
// A reference whose record slot was deleted or reused fails with the OS
// error of the open; resolution by ID never substitutes another file.
func (v *Volume) PathByID(ref usn.FileRef) (string, error) {
	desc := fileIDDescriptor{
		size:   uint32(unsafe.Sizeof(fileIDDescriptor{})),
		fileID: uint64(ref),
	}

	h, _, errno := procOpenFileByID.Call(
		uintptr(v.handle),
		uintptr(unsafe.Pointer(&desc)),
		uintptr(windows.FILE_READ_ATTRIBUTES),
		uintptr(windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE),
		0,
		0,
	)
	handle := windows.Handle(h)
	if handle == windows.InvalidHandle {
		return "", fmt.Errorf("open file by id %#x: %w", uint64(ref), errno)
	}
	defer windows.CloseHandle(handle)

	name, err := fileNameByHandle(handle)
	if err != nil {
		return "", fmt.Errorf("query name for id %#x: %w", uint64(ref), err)
	}

	if v.DriveLetter != 0 {
		return string(v.DriveLetter) + ":" + name, nil
	}

	return name, nil
}

// fileNameByHandle reads FILE_NAME_INFO, growing the buffer once when the
// path exceeds the initial MAX_PATH-sized attempt.
func fileNameByHandle(handle windows.Handle) (string, error) {
	buf := make([]byte, 4+windows.MAX_PATH*2)

	for {
		err := windows.GetFileInformationByHandleEx(handle, fileNameInfoClass, &buf[0], uint32(len(buf)))
		if err == nil {
			break
		}

		if err == windows.ERROR_MORE_DATA {
			needed := binary.LittleEndian.Uint32(buf)
			buf = make([]byte, 4+needed)

			continue
		}

		return "", err
	}

	nameLen := int(binary.LittleEndian.Uint32(buf)) / 2
	units := make([]uint16, nameLen)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(buf[4+i*2:])
	}

	return windows.UTF16ToString(units), nil
}
