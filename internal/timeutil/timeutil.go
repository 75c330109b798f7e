// Package timeutil converts between time.Time and the float64 unix-seconds
// timestamps carried in every wire envelope (meta_data.time, alert timestamp).
package timeutil

import "time"

// ToUnixFloat converts t to a float64 unix-seconds timestamp, matching the
// precision of Python's datetime.now().timestamp().
func ToUnixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixFloat converts a float64 unix-seconds timestamp back to a UTC
// time.Time.
func FromUnixFloat(ts float64) time.Time {
	secs := int64(ts)
	nanos := int64((ts - float64(secs)) * 1e9)
	return time.Unix(secs, nanos).UTC()
}

// Now is a seam over time.Now so tests can stub it out where injecting a
// clock through every constructor would be disproportionate.
var Now = time.Now
