// Package ratelimit provides a simple superpages-per-second rate limiter.
package ratelimit

import "time"

// Throttle limits to sps superpages per second on average.
// Not safe for concurrent use.
type Throttle struct {
	nsPerSuperpage int64
	superpagesSent uint64
	startTime      time.Time
	checkEvery     uint64
}

// New creates a limiter for sps superpages per second.
// If sps == 0, throttling is disabled.
func New(sps uint64) *Throttle {
	if sps == 0 {
		return nil
	}
	return &Throttle{
		nsPerSuperpage: int64(time.Second) / int64(sps),
		startTime:      time.Now(),

		// Check time every ~10ms of superpages to balance accuracy vs overhead
		// At least every 32 superpages. At most every 1024 superpages.
		checkEvery: min(max(sps/100, 32), 1024),
	}
}

// ThrottleN blocks until n superpages are allowed.
// The schedule is measured from the limiter's creation, so after falling
// behind it "catches up" by not sleeping until the average rate is back
// at sps.
func (l *Throttle) ThrottleN(n uint64) {
	if l == nil || n == 0 {
		return
	}

	l.superpagesSent += n
	if l.superpagesSent%l.checkEvery != 0 {
		return // Fast path: only check time periodically.
	}

	// Slow path: check if we need to sleep
	expectedTime := l.startTime.Add(time.Duration(int64(l.superpagesSent) * l.nsPerSuperpage))

	if now := time.Now(); now.Before(expectedTime) {
		time.Sleep(expectedTime.Sub(now))
	}
	// If behind schedule, naturally catch up by not sleeping
}
