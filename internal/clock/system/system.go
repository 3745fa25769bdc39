// Package system supplies the wall clock used to stamp fetched pages.
package system

import "time"

// Clock reports time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
