// Package usntest builds synthetic wire-format change records and ioctl
// output buffers, for tests that feed fake device responses into the
// journal reader and the MFT enumerator.
package usntest

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wangfu91/usn-journal-go/usn"
)

// AppendV2 appends a version 2 record encoding r to buf and returns the
// extended buffer. The record length is padded to a multiple of 8, the way
// the filesystem writes them.
func AppendV2(buf []byte, r usn.Record) []byte {
	name := encodeName(r.Name)
	recLen := pad8(60 + len(name))

	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint32(rec, uint32(recLen))
	binary.LittleEndian.PutUint16(rec[4:], 2)
	binary.LittleEndian.PutUint64(rec[8:], uint64(r.FileRef))
	binary.LittleEndian.PutUint64(rec[16:], uint64(r.ParentRef))
	binary.LittleEndian.PutUint64(rec[24:], uint64(r.USN))
	if !r.Time.IsZero() {
		binary.LittleEndian.PutUint64(rec[32:], uint64(usn.FiletimeFromTime(r.Time)))
	}
	binary.LittleEndian.PutUint32(rec[40:], uint32(r.Reason))
	binary.LittleEndian.PutUint32(rec[44:], r.SourceInfo)
	binary.LittleEndian.PutUint32(rec[48:], r.SecurityID)
	binary.LittleEndian.PutUint32(rec[52:], r.Attributes)
	binary.LittleEndian.PutUint16(rec[56:], uint16(len(name)))
	binary.LittleEndian.PutUint16(rec[58:], 60)
	copy(rec[60:], name)

	return append(buf, rec...)
}

// AppendV3 appends a version 3 record encoding r to buf and returns the
// extended buffer. The 128-bit identifiers carry r's 64-bit references in
// their low half.
func AppendV3(buf []byte, r usn.Record) []byte {
	name := encodeName(r.Name)
	recLen := pad8(76 + len(name))

	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint32(rec, uint32(recLen))
	binary.LittleEndian.PutUint16(rec[4:], 3)
	binary.LittleEndian.PutUint64(rec[8:], uint64(r.FileRef))
	binary.LittleEndian.PutUint64(rec[24:], uint64(r.ParentRef))
	binary.LittleEndian.PutUint64(rec[40:], uint64(r.USN))
	if !r.Time.IsZero() {
		binary.LittleEndian.PutUint64(rec[48:], uint64(usn.FiletimeFromTime(r.Time)))
	}
	binary.LittleEndian.PutUint32(rec[56:], uint32(r.Reason))
	binary.LittleEndian.PutUint32(rec[60:], r.SourceInfo)
	binary.LittleEndian.PutUint32(rec[64:], r.SecurityID)
	binary.LittleEndian.PutUint32(rec[68:], r.Attributes)
	binary.LittleEndian.PutUint16(rec[72:], uint16(len(name)))
	binary.LittleEndian.PutUint16(rec[74:], 76)
	copy(rec[76:], name)

	return append(buf, rec...)
}

// AppendV4 appends a version 4 range-tracking record encoding r and its
// extents to buf and returns the extended buffer.
func AppendV4(buf []byte, r usn.Record) []byte {
	recLen := pad8(64 + len(r.Extents)*16)

	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint32(rec, uint32(recLen))
	binary.LittleEndian.PutUint16(rec[4:], 4)
	binary.LittleEndian.PutUint64(rec[8:], uint64(r.FileRef))
	binary.LittleEndian.PutUint64(rec[24:], uint64(r.ParentRef))
	binary.LittleEndian.PutUint64(rec[40:], uint64(r.USN))
	binary.LittleEndian.PutUint32(rec[48:], uint32(r.Reason))
	binary.LittleEndian.PutUint32(rec[52:], r.SourceInfo)
	binary.LittleEndian.PutUint16(rec[60:], uint16(len(r.Extents)))
	binary.LittleEndian.PutUint16(rec[62:], 16)
	for i, e := range r.Extents {
		binary.LittleEndian.PutUint64(rec[64+i*16:], uint64(e.Offset))
		binary.LittleEndian.PutUint64(rec[72+i*16:], uint64(e.Length))
	}

	return append(buf, rec...)
}

// Batch frames records into one ioctl output buffer: the 8-byte continuation
// value (the next USN for journal reads, the next file reference for MFT
// enumeration) followed by the already encoded records.
func Batch(next uint64, records ...[]byte) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, next)
	for _, rec := range records {
		buf = append(buf, rec...)
	}

	return buf
}

func encodeName(name string) []byte {
	units := utf16.Encode([]rune(name))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}

	return b
}

func pad8(n int) int {
	return (n + 7) &^ 7
}
