package domain

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned when an output interval is not positive.
var ErrInvalidInterval = errors.New("output interval must be positive")

// NewTimeAxis returns the output stamps start+dt, start+2dt, ... up to and
// including stop.
func NewTimeAxis(start, stop time.Time, dt time.Duration) ([]time.Time, error) {
	if dt <= 0 {
		return nil, ErrInvalidInterval
	}
	var axis []time.Time
	for t := start.Add(dt); !t.After(stop); t = t.Add(dt) {
		axis = append(axis, t)
	}
	return axis, nil
}
