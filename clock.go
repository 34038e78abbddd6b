package reactor

import "time"

// Timestamp is a monotonic microsecond-resolution instant, used for poll
// return times and timer expirations. It wraps time.Time rather than
// re-deriving monotonic arithmetic, but is kept as a distinct type so call
// sites read the way the original Timestamp.h does (Now, Add, Before).
type Timestamp struct {
	t time.Time
}

// Now returns the current monotonic timestamp.
func Now() Timestamp {
	return Timestamp{t: time.Now()}
}

// Add returns the timestamp offset by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp{t: ts.t.Add(d)}
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.t.Before(other.t)
}

// After reports whether ts is strictly later than other.
func (ts Timestamp) After(other Timestamp) bool {
	return ts.t.After(other.t)
}

// Sub returns the duration ts - other.
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return ts.t.Sub(other.t)
}

// UnixMicro returns microseconds since the Unix epoch.
func (ts Timestamp) UnixMicro() int64 {
	return ts.t.UnixMicro()
}

// Time returns the underlying time.Time.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// String renders the timestamp for logging.
func (ts Timestamp) String() string {
	return ts.t.Format("2006-01-02T15:04:05.000000Z07:00")
}
