package timer

import "sync/atomic"

// QueueStats tallies how a queue's Run calls have been ending, across
// its whole lifetime. Useful for spotting a timer storm (iteration/time
// caps firing repeatedly) versus a healthy, mostly-idle scheduler (dry
// runs dominating).
type QueueStats struct {
	Empty         int64
	NotDue        int64
	IterationCap  int64
	TimeCap       int64
}

type drainCounters struct {
	empty        atomic.Int64
	notDue       atomic.Int64
	iterationCap atomic.Int64
	timeCap      atomic.Int64
}

func (c *drainCounters) record(reason string) {
	switch reason {
	case "empty":
		c.empty.Add(1)
	case "not-due":
		c.notDue.Add(1)
	case "iteration-cap":
		c.iterationCap.Add(1)
	case "time-cap":
		c.timeCap.Add(1)
	}
}

func (c *drainCounters) snapshot() QueueStats {
	return QueueStats{
		Empty:        c.empty.Load(),
		NotDue:       c.notDue.Load(),
		IterationCap: c.iterationCap.Load(),
		TimeCap:      c.timeCap.Load(),
	}
}

// Stats returns how this queue's drains have ended so far.
func (q *Queue[C]) Stats() QueueStats {
	return q.counters.snapshot()
}
