package timer

import (
	"context"
	"sync"

	"github.com/stormcord/core/internal/pqueue"
)

// negativeKeysLast orders a Queue's heap so that disabled entries (stored
// under key -1) never reach the top: any non-negative key beats any
// negative one, and negative keys are mutually unordered.
func negativeKeysLast(a, b int64) bool {
	if a < 0 && b < 0 {
		return false
	}
	if a < 0 {
		return false
	}
	if b < 0 {
		return true
	}
	return a < b
}

// drainToken identifies one in-flight Run call. A Ctl-family call whose
// context carries the current drainer's token is recognized as a
// self-reentrant call from inside a firing callback and is never made to
// wait on the queue's own drain.
type drainToken struct{}

type drainTokenKey struct{}

func withDrainToken(ctx context.Context, tok *drainToken) context.Context {
	return context.WithValue(ctx, drainTokenKey{}, tok)
}

func tokenFromContext(ctx context.Context) *drainToken {
	tok, _ := ctx.Value(drainTokenKey{}).(*drainToken)
	return tok
}

type activeState struct {
	isActive        bool
	token           *drainToken
	firingID        uint64
	skipUpdatePhase bool
}

// Queue is one of a Scheduler's two independent timer queues. It pairs an
// indexed priority queue with the locking discipline timers need: only
// one goroutine may be draining it at a time, every other caller blocks
// until the drain finishes, and the drain itself releases the lock for
// the duration of each callback so Ctl-family calls from outside (and,
// via the drain token, from inside) can still make progress.
type Queue[C any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	pq    *pqueue.Queue[*Entry[C]]
	clock Clock
	cfg   Config
	active activeState
	counters drainCounters

	// OnWake is called after every Ctl-family call (Get included) made
	// while no drain is in progress, whether or not it changed the
	// queue's next-trigger time, so a
	// caller driving an event loop around GetNextTrigger can recompute
	// its sleep duration. Nil is a safe no-op.
	OnWake func()
}

// NewQueue creates an empty queue. A nil clock defaults to the system
// clock; a zero-value cfg defaults to DefaultConfig's bounds.
func NewQueue[C any](clock Clock, cfg Config) *Queue[C] {
	if clock == nil {
		clock = realClock{}
	}
	q := &Queue[C]{
		pq:    pqueue.New[*Entry[C]](negativeKeysLast),
		clock: clock,
		cfg:   cfg.withDefaults(),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Len reports how many entries are currently queued, including disabled
// ones.
func (q *Queue[C]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Len()
}

func (q *Queue[C]) lock(ctx context.Context) error {
	q.mu.Lock()
	tok := tokenFromContext(ctx)
	for q.active.isActive && q.active.token != tok {
		if ctx.Done() != nil {
			stop := context.AfterFunc(ctx, func() {
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			})
			q.cond.Wait()
			stop()
		} else {
			q.cond.Wait()
		}
		if err := ctx.Err(); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	return nil
}

// unlockAndWake releases the lock and, if no drain is in progress, fires
// OnWake so a caller blocked sleeping on GetNextTrigger's result can
// re-evaluate it.
func (q *Queue[C]) unlockAndWake() {
	wake := !q.active.isActive
	q.mu.Unlock()
	if wake && q.OnWake != nil {
		q.OnWake()
	}
}

// ctlLocked must be called with q.mu held. It implements the full
// create-or-update contract described on Ctl.
func (q *Queue[C]) ctlLocked(in Entry[C]) (uint64, Entry[C]) {
	out := in
	if in.ID != 0 {
		_, stored, ok := q.pq.Get(in.ID)
		if !ok {
			return 0, out
		}
		if in.Flags&FlagGet != 0 {
			out = *stored
			if in.Flags == FlagGet {
				return out.ID, out
			}
		}
	}

	var key int64 = -1
	if in.Delay >= 0 {
		delayUs := in.Delay
		if in.Flags&FlagMicroseconds == 0 {
			delayUs *= 1000
		}
		key = q.clock.NowMicro() + delayUs
	}
	if in.Flags&(FlagDelete|FlagCanceled) != 0 {
		key = 0
	}

	stored := in
	stored.Flags &= AllowedFlags | FlagCanceled

	if in.ID == 0 {
		id := q.pq.Push(key, &stored)
		if id == 0 {
			return 0, out
		}
		stored.ID = id
		return id, out
	}

	if q.active.firingID == in.ID {
		q.active.skipUpdatePhase = true
	}
	stored.ID = in.ID
	if !q.pq.Update(in.ID, key, &stored) {
		return 0, out
	}
	return in.ID, out
}

// Ctl creates a new entry (in.ID == 0) or updates an existing one,
// returning its ID, or 0 on failure (unknown ID, or the queue is at
// capacity). If FlagGet is set the entry's prior state is copied into the
// returned Entry before any update is applied; if FlagGet is the only
// flag set, Ctl is a pure read and nothing is modified.
//
// A re-ctl on the entry currently firing (recognized via ctx carrying the
// active drainer's token) marks the in-flight drain iteration to skip its
// own post-callback update, so the caller's Ctl wins.
func (q *Queue[C]) Ctl(ctx context.Context, in Entry[C]) (uint64, Entry[C]) {
	if err := q.lock(ctx); err != nil {
		return 0, in
	}
	defer q.unlockAndWake()
	return q.ctlLocked(in)
}

// Get returns a copy of an entry without modifying it.
func (q *Queue[C]) Get(ctx context.Context, id uint64) (Entry[C], bool) {
	if id == 0 {
		return Entry[C]{}, false
	}
	if err := q.lock(ctx); err != nil {
		return Entry[C]{}, false
	}
	defer q.unlockAndWake()
	_, stored, ok := q.pq.Get(id)
	if !ok {
		return Entry[C]{}, false
	}
	return *stored, true
}

// Start reactivates a disabled entry: if its delay is negative it is
// clamped to 0, and the entry is re-ctl'd so a fresh trigger time is
// computed from the clamped delay. Returns 0 if id is unknown.
func (q *Queue[C]) Start(ctx context.Context, id uint64) uint64 {
	if err := q.lock(ctx); err != nil {
		return 0
	}
	defer q.unlockAndWake()
	_, stored, ok := q.pq.Get(id)
	if !ok {
		return 0
	}
	in := *stored
	in.ID = id
	if in.Delay < 0 {
		in.Delay = 0
	}
	newID, _ := q.ctlLocked(in)
	return newID
}

// addFlagsAndKey ORs addFlags into the stored entry and forces its key,
// without going through Ctl's delay-based key computation. It is the
// shared shape behind Stop, Cancel, Delete and CancelAndDelete.
func (q *Queue[C]) addFlagsAndKey(ctx context.Context, id uint64, addFlags Flags, key int64) bool {
	if err := q.lock(ctx); err != nil {
		return false
	}
	defer q.unlockAndWake()
	if q.active.firingID == id {
		q.active.skipUpdatePhase = true
	}
	_, stored, ok := q.pq.Get(id)
	if !ok {
		return false
	}
	updated := *stored
	updated.Flags |= addFlags
	updated.ID = id
	return q.pq.Update(id, key, &updated)
}

// Stop disables an entry without canceling or deleting it: it stays in
// the queue, inert, until Start or a plain Ctl reactivates it.
func (q *Queue[C]) Stop(ctx context.Context, id uint64) bool {
	return q.addFlagsAndKey(ctx, id, 0, -1)
}

// Cancel marks an entry canceled and schedules it to fire once more
// immediately with FlagCanceled set, so the callback can observe the
// cancellation and react (e.g. release resources tied to Data).
func (q *Queue[C]) Cancel(ctx context.Context, id uint64) bool {
	return q.addFlagsAndKey(ctx, id, FlagCanceled, 0)
}

// Delete schedules an entry for removal on the next drain, without
// invoking its callback again first.
func (q *Queue[C]) Delete(ctx context.Context, id uint64) bool {
	return q.addFlagsAndKey(ctx, id, FlagDelete, 0)
}

// CancelAndDelete combines Cancel and Delete: the callback fires once
// more with FlagCanceled set, and the entry is removed immediately after.
func (q *Queue[C]) CancelAndDelete(ctx context.Context, id uint64) bool {
	return q.addFlagsAndKey(ctx, id, FlagCanceled|FlagDelete, 0)
}

// DrainStats summarizes one Run call.
type DrainStats struct {
	Fired         int
	StoppedReason string // "empty", "not-due", "iteration-cap", "time-cap"
}

// Run drains every due entry, invoking callbacks with the lock released,
// until the queue is empty, the next entry isn't due yet, or one of the
// drain's own bounds (MaxDrainIterations, MaxDrainDuration) is hit.
//
// Run blocks until it can become the queue's active drainer; only one
// Run call runs at a time per Queue. Entries that re-ctl themselves from
// inside their own callback (using the ctx passed to Callback) are
// recognized via the drain token and do not wait for Run to finish.
func (q *Queue[C]) Run(ctx context.Context, client C) (DrainStats, error) {
	if err := q.lock(ctx); err != nil {
		return DrainStats{}, err
	}

	tok := new(drainToken)
	q.active = activeState{isActive: true, token: tok}
	runCtx := withDrainToken(ctx, tok)

	start := q.clock.NowMicro()
	now := start
	var stats DrainStats
	iterations := 0

	for ; iterations < q.cfg.MaxDrainIterations; iterations++ {
		if iterations&0x1F == 0 {
			now = q.clock.NowMicro()
			if now-start > q.cfg.MaxDrainDuration.Microseconds() {
				stats.StoppedReason = "time-cap"
				break
			}
		}

		id, trigger, stored, ok := q.pq.Peek()
		if !ok {
			stats.StoppedReason = "empty"
			break
		}
		if trigger < 0 || trigger > now {
			stats.StoppedReason = "not-due"
			break
		}

		entry := *stored
		entry.ID = id
		q.active.firingID = id
		q.active.skipUpdatePhase = false

		if entry.Flags&FlagCanceled == 0 {
			if entry.Flags&FlagDelete != 0 {
				q.pq.Delete(id)
				continue
			}
			if entry.Repeat > 0 {
				entry.Repeat--
			}
		}

		if entry.Callback != nil {
			cb := entry.Callback
			q.mu.Unlock()
			cb(runCtx, client, entry)
			q.mu.Lock()
		}
		stats.Fired++

		if q.active.skipUpdatePhase {
			continue
		}

		if (entry.Repeat == 0 || entry.Flags&FlagCanceled != 0) && entry.Flags&FlagDeleteAuto != 0 {
			entry.Flags |= FlagDelete
		}
		if entry.Flags&FlagDelete != 0 {
			q.pq.Delete(id)
			continue
		}

		next := int64(-1)
		if entry.Delay != -1 && entry.Interval >= 0 && entry.Repeat != 0 && entry.Flags&FlagCanceled == 0 {
			base := now
			if entry.Flags&FlagIntervalFixed != 0 {
				base = trigger
			}
			interval := entry.Interval
			if entry.Flags&FlagMicroseconds == 0 {
				interval *= 1000
			}
			next = base + interval
		}
		entry.Flags &= AllowedFlags
		entry.ID = id
		q.pq.Update(id, next, &entry)
	}

	if stats.StoppedReason == "" {
		stats.StoppedReason = "iteration-cap"
	}

	q.active = activeState{}
	q.cond.Broadcast()
	q.mu.Unlock()
	q.counters.record(stats.StoppedReason)
	return stats, nil
}

// CancelAll fires every remaining entry's callback once with FlagCanceled
// set and discards it, draining the queue completely. It is used during
// shutdown, after SetMaxCapacity(0) has blocked further inserts.
func (q *Queue[C]) CancelAll(ctx context.Context, client C) error {
	if err := q.lock(ctx); err != nil {
		return err
	}
	defer q.unlockAndWake()

	for {
		id, _, stored, ok := q.pq.Pop()
		if !ok {
			break
		}
		entry := *stored
		entry.ID = id
		entry.Flags |= FlagCanceled
		if entry.Callback != nil {
			cb := entry.Callback
			q.mu.Unlock()
			cb(ctx, client, entry)
			q.mu.Lock()
		}
	}
	return nil
}

// Cleanup permanently closes the queue to new entries and cancels
// whatever remains.
func (q *Queue[C]) Cleanup(ctx context.Context, client C) error {
	q.mu.Lock()
	q.pq.SetMaxCapacity(0)
	q.mu.Unlock()
	return q.CancelAll(ctx, client)
}

// GetNextTrigger returns how long, in microseconds, an event loop driving
// these queues should sleep before the next entry across all of them
// becomes due, clamped to maxTime. If any queue's lock is held at the
// moment of the call (for instance by a drain outside a callback) it
// returns 0, telling the caller to wake immediately rather than risk
// sleeping past a trigger.
func GetNextTrigger[C any](queues []*Queue[C], now, maxTime int64) int64 {
	if maxTime == 0 {
		return 0
	}
	for _, q := range queues {
		if !q.mu.TryLock() {
			return 0
		}
		_, key, _, ok := q.pq.Peek()
		q.mu.Unlock()
		if !ok || key < 0 {
			continue
		}
		if key <= now {
			maxTime = 0
			continue
		}
		if d := key - now; d < maxTime {
			maxTime = d
		}
	}
	return maxTime
}
