package jobs

import "time"

// TimeoutModel sizes a job deadline from the chunk's expected runtime:
// clamp(minutes*PerMinute + Base, Min, Max).
type TimeoutModel struct {
	PerMinute time.Duration
	Base      time.Duration
	Min       time.Duration
	Max       time.Duration
}

func (m TimeoutModel) For(minutes float64) time.Duration {
	d := time.Duration(minutes*float64(m.PerMinute)) + m.Base
	if d < m.Min {
		d = m.Min
	}
	if m.Max > 0 && d > m.Max {
		d = m.Max
	}
	return d
}
