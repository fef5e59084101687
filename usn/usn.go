// Package usn defines the core value types shared by the journal reader and
// the MFT enumerator, together with the codec for the versioned binary
// change records the operating system writes into ioctl output buffers.
//
// Everything in this package is pure computation over byte slices: there is
// no I/O and no shared mutable state, so all functions and value methods are
// safe for concurrent use.
package usn

import (
	"strings"
	"time"
)

// USN is an update sequence number. Within one journal identity epoch, the
// USNs of successive records are strictly increasing.
type USN int64

// FileRef is the 64-bit NTFS file reference number: a 48-bit MFT record
// index combined with a 16-bit reuse sequence. Two references name the same
// file only if both halves match; a diverging sequence means the record slot
// was reused for a different file after deletion.
//
// Version 3 and 4 records carry 128-bit identifiers; on NTFS their high half
// is zero and they map losslessly onto FileRef. ReFS identifiers wider than
// 64 bits are truncated to their low half.
type FileRef uint64

const indexMask = 0x0000_FFFF_FFFF_FFFF

// RootIndex is the MFT record index of the volume root directory.
const RootIndex uint64 = 5

// NewFileRef combines an MFT record index and a reuse sequence number.
func NewFileRef(index uint64, sequence uint16) FileRef {
	return FileRef(index&indexMask | uint64(sequence)<<48)
}

// Index returns the MFT record index half of the reference.
func (r FileRef) Index() uint64 {
	return uint64(r) & indexMask
}

// Sequence returns the reuse sequence half of the reference.
func (r FileRef) Sequence() uint16 {
	return uint16(uint64(r) >> 48)
}

// IsZero reports whether the reference is the zero value, which no live
// record ever carries.
func (r FileRef) IsZero() bool {
	return r == 0
}

// File attribute bits as reported in change records.
const (
	AttrReadOnly  uint32 = 0x0001
	AttrHidden    uint32 = 0x0002
	AttrSystem    uint32 = 0x0004
	AttrDirectory uint32 = 0x0010
	AttrArchive   uint32 = 0x0020
	AttrNormal    uint32 = 0x0080
	AttrTemporary uint32 = 0x0100
	AttrSparse    uint32 = 0x0200
	AttrReparse   uint32 = 0x0400
	AttrCompress  uint32 = 0x0800
	AttrOffline   uint32 = 0x1000
	AttrEncrypted uint32 = 0x4000
)

// Reason is the bitset of change kinds recorded for one journal record.
type Reason uint32

// Change reason bits, matching the USN_REASON_* wire values.
const (
	ReasonDataOverwrite         Reason = 0x00000001
	ReasonDataExtend            Reason = 0x00000002
	ReasonDataTruncation        Reason = 0x00000004
	ReasonNamedDataOverwrite    Reason = 0x00000010
	ReasonNamedDataExtend       Reason = 0x00000020
	ReasonNamedDataTruncation   Reason = 0x00000040
	ReasonFileCreate            Reason = 0x00000100
	ReasonFileDelete            Reason = 0x00000200
	ReasonEAChange              Reason = 0x00000400
	ReasonSecurityChange        Reason = 0x00000800
	ReasonRenameOldName         Reason = 0x00001000
	ReasonRenameNewName         Reason = 0x00002000
	ReasonIndexableChange       Reason = 0x00004000
	ReasonBasicInfoChange       Reason = 0x00008000
	ReasonHardLinkChange        Reason = 0x00010000
	ReasonCompressionChange     Reason = 0x00020000
	ReasonEncryptionChange      Reason = 0x00040000
	ReasonObjectIDChange        Reason = 0x00080000
	ReasonReparsePointChange    Reason = 0x00100000
	ReasonStreamChange          Reason = 0x00200000
	ReasonTransactedChange      Reason = 0x00400000
	ReasonIntegrityChange       Reason = 0x00800000
	ReasonDesiredStorageClassCh Reason = 0x01000000
	ReasonClose                 Reason = 0x80000000
)

// ReasonMaskAll selects every change kind when reading the journal.
const ReasonMaskAll Reason = 0xFFFFFFFF

var reasonNames = []struct {
	bit  Reason
	name string
}{
	{ReasonDataOverwrite, "DATA_OVERWRITE"},
	{ReasonDataExtend, "DATA_EXTEND"},
	{ReasonDataTruncation, "DATA_TRUNCATION"},
	{ReasonNamedDataOverwrite, "NAMED_DATA_OVERWRITE"},
	{ReasonNamedDataExtend, "NAMED_DATA_EXTEND"},
	{ReasonNamedDataTruncation, "NAMED_DATA_TRUNCATION"},
	{ReasonFileCreate, "FILE_CREATE"},
	{ReasonFileDelete, "FILE_DELETE"},
	{ReasonEAChange, "EA_CHANGE"},
	{ReasonSecurityChange, "SECURITY_CHANGE"},
	{ReasonRenameOldName, "RENAME_OLD_NAME"},
	{ReasonRenameNewName, "RENAME_NEW_NAME"},
	{ReasonIndexableChange, "INDEXABLE_CHANGE"},
	{ReasonBasicInfoChange, "BASIC_INFO_CHANGE"},
	{ReasonHardLinkChange, "HARD_LINK_CHANGE"},
	{ReasonCompressionChange, "COMPRESSION_CHANGE"},
	{ReasonEncryptionChange, "ENCRYPTION_CHANGE"},
	{ReasonObjectIDChange, "OBJECT_ID_CHANGE"},
	{ReasonReparsePointChange, "REPARSE_POINT_CHANGE"},
	{ReasonStreamChange, "STREAM_CHANGE"},
	{ReasonTransactedChange, "TRANSACTED_CHANGE"},
	{ReasonIntegrityChange, "INTEGRITY_CHANGE"},
	{ReasonDesiredStorageClassCh, "DESIRED_STORAGE_CLASS_CHANGE"},
	{ReasonClose, "CLOSE"},
}

// Has reports whether all bits of flag are set.
func (r Reason) Has(flag Reason) bool {
	return r&flag == flag
}

// String renders the set bits as a pipe-separated list of their wire names.
func (r Reason) String() string {
	if r == 0 {
		return "NONE"
	}

	var names []string
	for _, rn := range reasonNames {
		if r&rn.bit != 0 {
			names = append(names, rn.name)
		}
	}

	if len(names) == 0 {
		return "UNKNOWN"
	}

	return strings.Join(names, " | ")
}

// Extent is one modified byte range of a version 4 record.
type Extent struct {
	Offset int64
	Length int64
}

// Record is one decoded change record. It is an immutable value; the name
// and extent slices are never shared with the buffer it was decoded from.
type Record struct {
	USN        USN
	FileRef    FileRef
	ParentRef  FileRef
	Time       time.Time
	Reason     Reason
	SourceInfo uint32
	SecurityID uint32
	Attributes uint32
	Name       string

	// Extents is populated for version 4 records only, which describe
	// modified ranges instead of carrying a file name.
	Extents []Extent
}

// IsDir reports whether the record describes a directory.
func (r *Record) IsDir() bool {
	return r.Attributes&AttrDirectory != 0
}

// IsHidden reports whether the record describes a hidden file or directory.
func (r *Record) IsHidden() bool {
	return r.Attributes&AttrHidden != 0
}
