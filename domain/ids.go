package domain

import (
	"strconv"
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp returns the current time in nanoseconds, bumped past the
// previously issued value so two calls never return the same number.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// NewID returns a process-unique task id. Ids issued in the same
// millisecond, or the same nanosecond, still differ.
func NewID() string {
	return strconv.FormatInt(nextTimestamp(), 36)
}
