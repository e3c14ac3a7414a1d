package congestion_quic

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// DefaultClock is a clock that returns the current time, or the time of
// TimeFunc when it is set.
type DefaultClock struct {
	TimeFunc func() time.Time
}

// Now returns the current time.
func (c DefaultClock) Now() time.Time {
	if c.TimeFunc != nil {
		return c.TimeFunc()
	}
	return time.Now()
}
