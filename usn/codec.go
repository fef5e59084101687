package usn

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Record wire layout, shared header:
//
//	offset 0  RecordLength  uint32
//	offset 4  MajorVersion  uint16
//	offset 6  MinorVersion  uint16
//
// followed by version-specific fixed fields and, for versions 2 and 3, a
// trailing UTF-16LE file name located by FileNameOffset/FileNameLength
// relative to the record start. All fields are little-endian.
const (
	headerSize = 8

	v2FixedSize = 60 // name field starts here at the earliest
	v3FixedSize = 76
	v4FixedSize = 64 // extent array starts here

	extentSize = 16
)

// DecodeRecord decodes the change record starting at off within buf.
//
// On success it returns the decoded record and the declared record length,
// so the caller can step to the next record in the buffer. On a malformed
// record it returns a *ParseError; the returned length is still the declared
// record length whenever that length itself was plausible, allowing the
// caller to skip past the bad record, and 0 when the length cannot be
// trusted and the rest of the buffer is unwalkable.
func DecodeRecord(buf []byte, off int) (Record, int, error) {
	if off < 0 || off+headerSize > len(buf) {
		return Record{}, 0, &ParseError{Offset: off, Reason: "record header exceeds buffer"}
	}

	b := buf[off:]
	recLen := int(binary.LittleEndian.Uint32(b))
	major := binary.LittleEndian.Uint16(b[4:])

	if recLen < headerSize || off+recLen > len(buf) {
		return Record{}, 0, &ParseError{
			Offset:  off,
			Version: major,
			Reason:  fmt.Sprintf("declared length %d exceeds remaining buffer %d", recLen, len(buf)-off),
		}
	}
	b = b[:recLen]

	switch major {
	case 2:
		return decodeV2(b, off, recLen)
	case 3:
		return decodeV3(b, off, recLen)
	case 4:
		return decodeV4(b, off, recLen)
	default:
		return Record{}, recLen, &ParseError{
			Offset:  off,
			Version: major,
			Reason:  "unrecognized version tag",
		}
	}
}

func decodeV2(b []byte, off, recLen int) (Record, int, error) {
	if recLen < v2FixedSize {
		return Record{}, recLen, &ParseError{
			Offset:  off,
			Version: 2,
			Reason:  fmt.Sprintf("declared length %d below fixed size %d", recLen, v2FixedSize),
		}
	}

	name, err := decodeName(b, off, 2, 56)
	if err != nil {
		return Record{}, recLen, err
	}

	return Record{
		FileRef:    FileRef(binary.LittleEndian.Uint64(b[8:])),
		ParentRef:  FileRef(binary.LittleEndian.Uint64(b[16:])),
		USN:        USN(binary.LittleEndian.Uint64(b[24:])),
		Time:       TimeFromFiletime(int64(binary.LittleEndian.Uint64(b[32:]))),
		Reason:     Reason(binary.LittleEndian.Uint32(b[40:])),
		SourceInfo: binary.LittleEndian.Uint32(b[44:]),
		SecurityID: binary.LittleEndian.Uint32(b[48:]),
		Attributes: binary.LittleEndian.Uint32(b[52:]),
		Name:       name,
	}, recLen, nil
}

func decodeV3(b []byte, off, recLen int) (Record, int, error) {
	if recLen < v3FixedSize {
		return Record{}, recLen, &ParseError{
			Offset:  off,
			Version: 3,
			Reason:  fmt.Sprintf("declared length %d below fixed size %d", recLen, v3FixedSize),
		}
	}

	name, err := decodeName(b, off, 3, 72)
	if err != nil {
		return Record{}, recLen, err
	}

	return Record{
		FileRef:    fileRefFrom128(b[8:]),
		ParentRef:  fileRefFrom128(b[24:]),
		USN:        USN(binary.LittleEndian.Uint64(b[40:])),
		Time:       TimeFromFiletime(int64(binary.LittleEndian.Uint64(b[48:]))),
		Reason:     Reason(binary.LittleEndian.Uint32(b[56:])),
		SourceInfo: binary.LittleEndian.Uint32(b[60:]),
		SecurityID: binary.LittleEndian.Uint32(b[64:]),
		Attributes: binary.LittleEndian.Uint32(b[68:]),
		Name:       name,
	}, recLen, nil
}

// Version 4 records describe the modified byte ranges of a file and carry no
// name, timestamp or attributes.
func decodeV4(b []byte, off, recLen int) (Record, int, error) {
	if recLen < v4FixedSize {
		return Record{}, recLen, &ParseError{
			Offset:  off,
			Version: 4,
			Reason:  fmt.Sprintf("declared length %d below fixed size %d", recLen, v4FixedSize),
		}
	}

	count := int(binary.LittleEndian.Uint16(b[60:]))
	size := int(binary.LittleEndian.Uint16(b[62:]))
	if size < extentSize || v4FixedSize+count*size > recLen {
		return Record{}, recLen, &ParseError{
			Offset:  off,
			Version: 4,
			Reason:  fmt.Sprintf("extent array %dx%d inconsistent with record length %d", count, size, recLen),
		}
	}

	extents := make([]Extent, count)
	for i := range extents {
		e := b[v4FixedSize+i*size:]
		extents[i] = Extent{
			Offset: int64(binary.LittleEndian.Uint64(e)),
			Length: int64(binary.LittleEndian.Uint64(e[8:])),
		}
	}

	return Record{
		FileRef:    fileRefFrom128(b[8:]),
		ParentRef:  fileRefFrom128(b[24:]),
		USN:        USN(binary.LittleEndian.Uint64(b[40:])),
		Reason:     Reason(binary.LittleEndian.Uint32(b[48:])),
		SourceInfo: binary.LittleEndian.Uint32(b[52:]),
		Extents:    extents,
	}, recLen, nil
}

// decodeName extracts the trailing UTF-16LE name field. lenOff is the record
// offset of the FileNameLength field, immediately followed by
// FileNameOffset; b is the full record, off its buffer position for error
// context.
func decodeName(b []byte, off int, version uint16, lenOff int) (string, error) {
	nameLen := int(binary.LittleEndian.Uint16(b[lenOff:]))
	nameOff := int(binary.LittleEndian.Uint16(b[lenOff+2:]))

	if nameLen%2 != 0 || nameOff < lenOff+4 || nameOff+nameLen > len(b) {
		return "", &ParseError{
			Offset:  off,
			Version: version,
			Reason:  fmt.Sprintf("name field %d+%d inconsistent with record length %d", nameOff, nameLen, len(b)),
		}
	}

	units := make([]uint16, nameLen/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[nameOff+i*2:])
	}

	return string(utf16.Decode(units)), nil
}

func fileRefFrom128(b []byte) FileRef {
	return FileRef(binary.LittleEndian.Uint64(b))
}
