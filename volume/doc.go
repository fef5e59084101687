// Package volume opens NTFS/ReFS volume device handles for change journal
// and MFT operations. The handle acquisition and control plumbing are
// Windows-only; the error values are declared unconditionally so consumers
// can match them on any platform.
package volume
