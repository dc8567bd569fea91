package utils

import "time"

func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	now := Now()
	return &now
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// EpochMillis converts a timestamp to epoch milliseconds, the wire format the
// presentation layer expects for date columns.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
