package utils

import "time"

// NowEpochMillis returns the current time as a millisecond epoch
func NowEpochMillis() int64 {
	return time.Now().UnixMilli()
}

// EpochMillisToTime converts a millisecond epoch to a time.Time
func EpochMillisToTime(epoch int64) time.Time {
	return time.UnixMilli(epoch)
}
