package mft

import "errors"

// ErrBufferTooSmall is returned after the enumeration buffer was grown to
// its fixed maximum and the operating system still reported it as too small
// for the next record.
var ErrBufferTooSmall = errors.New("enumeration buffer exhausted at maximum size")
