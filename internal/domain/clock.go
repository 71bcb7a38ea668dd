package domain

import "github.com/jonboulle/clockwork"

var clock = clockwork.NewRealClock()

// SetClock replaces the time source behind Timestamp; nil restores real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Timestamp returns the current UTC time formatted with UpdatedAtLayout.
func Timestamp() string {
	return clock.Now().UTC().Format(UpdatedAtLayout)
}
