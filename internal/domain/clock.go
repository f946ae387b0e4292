package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

var statusClock clockwork.Clock = clockwork.NewRealClock()

// SetClock replaces the clock that stamps RunStatus start and finish times.
// A nil clock restores the wall clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	statusClock = c
}

func now() time.Time { return statusClock.Now().UTC() }
