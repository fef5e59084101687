package usn

import "time"

// Ticks of 100ns between the Windows epoch (1601-01-01) and the Unix epoch.
const filetimeUnixDelta = 116444736000000000

// TimeFromFiletime converts a Windows FILETIME value, 100-nanosecond
// intervals since 1601-01-01 UTC, into a time.Time. The tick count is split
// into seconds and remainder first; scaling it to nanoseconds in one step
// would overflow int64 for dates near either epoch.
func TimeFromFiletime(ft int64) time.Time {
	ticks := ft - filetimeUnixDelta

	return time.Unix(ticks/10_000_000, ticks%10_000_000*100).UTC()
}

// FiletimeFromTime is the inverse of TimeFromFiletime. Sub-tick precision is
// truncated.
func FiletimeFromTime(t time.Time) int64 {
	return t.UnixNano()/100 + filetimeUnixDelta
}
