package timer

import "context"

// Entry describes one scheduled timer. Callback is invoked with the
// context Run was given (wrapped so that a re-ctl from inside the
// callback is recognized as coming from the active drainer rather than
// blocking on itself), the scheduler's client value, and a snapshot of
// the entry as it stood at trigger time.
//
// Delay and Interval are interpreted as milliseconds unless FlagMicroseconds
// is set. Delay < 0 means "leave disabled" on create, or "disable" when
// passed to Ctl on an existing entry. Repeat < 0 means fire forever;
// Repeat == 0 means fire once; Repeat == N means N remaining firings.
type Entry[C any] struct {
	ID       uint64
	Callback func(ctx context.Context, client C, entry Entry[C])
	Data     any
	Delay    int64
	Interval int64
	Repeat   int64
	Flags    Flags
}
