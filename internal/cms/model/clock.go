package model

import "time"

// Clock returns the current UTC time. Tests can replace it for determinism.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
