package attempt

import "time"

// Clock abstracts wall time and the tick source so sessions are
// deterministic under test. The engine owns exactly one ticker per
// session; Tick returns the channel plus a stop function.
type Clock interface {
	Now() time.Time
	Tick(d time.Duration) (<-chan time.Time, func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
