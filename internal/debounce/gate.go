package debounce

import "time"

// Gate drops samples that arrive within Interval of the last accepted
// one. Timestamps are sensor nanoseconds, never wall-clock arrival time.
type Gate struct {
	interval time.Duration
	last     int64
	have     bool
}

// NewGate returns a gate with the given minimum interval.
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// Accept reports whether a sample stamped ts should be evaluated. The
// stored timestamp only moves when the sample is accepted. A timestamp
// older than the last accepted one is dropped.
func (g *Gate) Accept(ts int64) bool {
	if g.have && time.Duration(ts-g.last) < g.interval {
		return false
	}
	g.last = ts
	g.have = true
	return true
}
