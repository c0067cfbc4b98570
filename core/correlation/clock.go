package correlation

import "time"

// Clock abstracts the time source so the lazy and swept expiry paths agree on
// "now" and TTL behavior stays testable without real waits.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock time source.
func SystemClock() Clock { return systemClock{} }
