package service_test

import "time"

// fixedClock pins Now so window and expiry logic is deterministic.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
