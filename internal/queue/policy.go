// Package queue implements the admission-control queue (the virtual
// waiting room) that gates entry into the booking flow.  A bounded
// number of ACTIVE tokens exist per concert; everyone else WAITs in
// strict FIFO order on their entry timestamp.
package queue

import "time"

// ThroughputPolicy describes how fast the queue drains: one admission
// batch of BatchSize tokens per Interval.  Position-to-ETA estimates
// derive from it.  The numbers are tunables loaded from config, not
// constants of the system.
type ThroughputPolicy struct {
	BatchSize int           // tokens activated per admission batch
	Interval  time.Duration // time between admission batches
}

// DefaultThroughputPolicy matches the historically observed drain
// rate of ten admissions per minute.
var DefaultThroughputPolicy = ThroughputPolicy{BatchSize: 10, Interval: time.Minute}

// EstimateWait converts a 1-based queue position into an estimated
// wait: the number of whole batches ahead of the token times the
// batch interval.  Position 0 (ACTIVE) and negative positions
// estimate zero.
func (p ThroughputPolicy) EstimateWait(position int64) time.Duration {
	if position <= 0 || p.BatchSize <= 0 {
		return 0
	}
	batches := position / int64(p.BatchSize)
	return time.Duration(batches) * p.Interval
}
