package timer

import "context"

// Scheduler owns the two timer queues a session drives: User for
// caller-scheduled timers (reconnect backoff, heartbeats, application
// callbacks) and Internal for bookkeeping the session itself schedules
// and that user code has no business touching directly. They are
// completely independent queues — a drain of one never blocks or is
// blocked by the other.
type Scheduler[C any] struct {
	Client   C
	User     *Queue[C]
	Internal *Queue[C]
}

// NewScheduler creates a Scheduler whose queues share the same clock and
// drain bounds.
func NewScheduler[C any](client C, clock Clock, cfg Config) *Scheduler[C] {
	return &Scheduler[C]{
		Client:   client,
		User:     NewQueue[C](clock, cfg),
		Internal: NewQueue[C](clock, cfg),
	}
}

// Ctl operates on the user queue. See Queue.Ctl.
func (s *Scheduler[C]) Ctl(ctx context.Context, entry Entry[C]) (uint64, Entry[C]) {
	return s.User.Ctl(ctx, entry)
}

// CtlInternal operates on the internal queue. See Queue.Ctl.
func (s *Scheduler[C]) CtlInternal(ctx context.Context, entry Entry[C]) (uint64, Entry[C]) {
	return s.Internal.Ctl(ctx, entry)
}

// Get, Start, Stop, Cancel, Delete and CancelAndDelete all operate on the
// user queue, matching the surface user code is expected to call.
func (s *Scheduler[C]) Get(ctx context.Context, id uint64) (Entry[C], bool) {
	return s.User.Get(ctx, id)
}

func (s *Scheduler[C]) Start(ctx context.Context, id uint64) uint64 {
	return s.User.Start(ctx, id)
}

func (s *Scheduler[C]) Stop(ctx context.Context, id uint64) bool {
	return s.User.Stop(ctx, id)
}

func (s *Scheduler[C]) Cancel(ctx context.Context, id uint64) bool {
	return s.User.Cancel(ctx, id)
}

func (s *Scheduler[C]) Delete(ctx context.Context, id uint64) bool {
	return s.User.Delete(ctx, id)
}

func (s *Scheduler[C]) CancelAndDelete(ctx context.Context, id uint64) bool {
	return s.User.CancelAndDelete(ctx, id)
}

// GetNextTrigger reports how long an event loop should sleep before
// either queue next has work, across both at once.
func (s *Scheduler[C]) GetNextTrigger(now, maxTime int64) int64 {
	return GetNextTrigger([]*Queue[C]{s.User, s.Internal}, now, maxTime)
}

// RunUser drains the user queue. See Queue.Run.
func (s *Scheduler[C]) RunUser(ctx context.Context) (DrainStats, error) {
	return s.User.Run(ctx, s.Client)
}

// RunInternal drains the internal queue. See Queue.Run.
func (s *Scheduler[C]) RunInternal(ctx context.Context) (DrainStats, error) {
	return s.Internal.Run(ctx, s.Client)
}

// Run drains both queues in turn, user first. A misbehaving internal
// timer can never starve user timers of their own drain cap this way,
// but it does mean a very busy user queue can push an internal drain
// later in wall-clock terms within a single Run call.
func (s *Scheduler[C]) Run(ctx context.Context) (user, internal DrainStats, err error) {
	user, err = s.RunUser(ctx)
	if err != nil {
		return user, DrainStats{}, err
	}
	internal, err = s.RunInternal(ctx)
	return user, internal, err
}

// Cleanup closes both queues to new entries and cancels whatever remains
// in each.
func (s *Scheduler[C]) Cleanup(ctx context.Context) error {
	if err := s.User.Cleanup(ctx, s.Client); err != nil {
		return err
	}
	return s.Internal.Cleanup(ctx, s.Client)
}
