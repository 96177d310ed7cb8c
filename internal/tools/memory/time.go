package memory

import "time"

func nowMsDefault() int64 {
	return time.Now().UnixMilli()
}

func timeFromMs(ms int64) time.Time {
	return time.UnixMilli(ms)
}
