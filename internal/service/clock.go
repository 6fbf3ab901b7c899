package service

import (
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/util"
)

// Clock supplies "today" in the business timezone
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock returns a wall clock for loc; nil loc means UTC
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

// FixedClock always reports the given instant, for tests and backfills
func FixedClock(t time.Time) Clock {
	return Clock{Now: func() time.Time { return t }, Location: time.UTC}
}

// Today is the current calendar date as a storage-form midnight
func (c Clock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return util.Today(now(), c.Location)
}
