package timer

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func newFakeClock(startMicro int64) *fakeClock {
	return &fakeClock{now: startMicro}
}

func (c *fakeClock) NowMicro() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d.Microseconds()
	c.mu.Unlock()
}

func TestSingleShotTimerFiresOnceAndDeletes(t *testing.T) {
	clock := newFakeClock(1_000_000)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	fired := 0
	id, _ := q.Ctl(ctx, Entry[string]{
		Delay: 10,
		Flags: FlagDeleteAuto,
		Callback: func(_ context.Context, client string, e Entry[string]) {
			fired++
			if client != "client" {
				t.Fatalf("unexpected client %q", client)
			}
		},
	})
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	clock.Advance(11 * time.Millisecond)
	stats, err := q.Run(ctx, "client")
	if err != nil {
		t.Fatal(err)
	}
	if fired != 1 || stats.Fired != 1 {
		t.Fatalf("expected exactly one fire, got fired=%d stats.Fired=%d", fired, stats.Fired)
	}
	if q.Len() != 0 {
		t.Fatalf("expected entry auto-deleted, got len %d", q.Len())
	}
}

func TestIntervalFixedDoesNotDrift(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	q.Ctl(ctx, Entry[string]{
		Delay:    100,
		Interval: 100,
		Repeat:   -1,
		Flags:    FlagIntervalFixed,
	})

	if _, key, _, ok := q.pq.Peek(); !ok || key != 100_000 {
		t.Fatalf("expected initial trigger at 100000us, got %d", key)
	}

	// The 250ms step leaves both the 200ms and 300ms triggers due, so that
	// Run fires twice and catches up to 400ms; the 1ms step after it finds
	// nothing due.
	wantTriggers := []int64{200_000, 400_000, 400_000}
	drifts := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 1 * time.Millisecond}
	for i, drift := range drifts {
		clock.Advance(drift)
		if _, err := q.Run(ctx, "client"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		_, key, _, ok := q.pq.Peek()
		if !ok || key != wantTriggers[i] {
			t.Fatalf("run %d: expected next trigger %d, got %d", i, wantTriggers[i], key)
		}
	}
}

func TestCancelAndDeleteFromWithinCallback(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	calls := 0
	q.Ctl(ctx, Entry[string]{
		Delay:    10,
		Interval: 10,
		Repeat:   -1,
		Callback: func(cbCtx context.Context, client string, e Entry[string]) {
			calls++
			if e.Flags&FlagCanceled == 0 {
				if !q.CancelAndDelete(cbCtx, e.ID) {
					t.Fatal("expected self-reentrant CancelAndDelete to succeed")
				}
			}
		},
	})

	clock.Advance(11 * time.Millisecond)
	if _, err := q.Run(ctx, "client"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected the canceling fire plus one acknowledgment fire, got %d calls", calls)
	}
	if q.Len() != 0 {
		t.Fatalf("expected entry removed after self cancel-and-delete, got len %d", q.Len())
	}
}

func TestRunStopsOnIterationCap(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{MaxDrainIterations: 5})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		q.Ctl(ctx, Entry[string]{Delay: 0, Flags: FlagDeleteAuto})
	}

	stats, err := q.Run(ctx, "client")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fired != 5 || stats.StoppedReason != "iteration-cap" {
		t.Fatalf("expected 5 fires stopped by iteration-cap, got fired=%d reason=%s", stats.Fired, stats.StoppedReason)
	}
	if q.Len() != 5 {
		t.Fatalf("expected 5 entries remaining, got %d", q.Len())
	}
}

// steppingClock reports 0 until its third call, then jumps far enough
// ahead to blow through the default drain-duration cap on the very next
// periodic time check inside Run.
type steppingClock struct {
	calls int
}

func (c *steppingClock) NowMicro() int64 {
	c.calls++
	if c.calls <= 2 {
		return 0
	}
	return 20_000
}

func TestRunStopsOnTimeCap(t *testing.T) {
	clock := &steppingClock{}
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	for i := 0; i < 64; i++ {
		q.Ctl(ctx, Entry[string]{Delay: 0, Flags: FlagDeleteAuto})
		clock.calls = 0 // Ctl reads the clock too; only Run's reads count toward the jump
	}

	stats, err := q.Run(ctx, "client")
	if err != nil {
		t.Fatal(err)
	}
	if stats.StoppedReason != "time-cap" {
		t.Fatalf("expected time-cap, got reason=%s fired=%d", stats.StoppedReason, stats.Fired)
	}
	if stats.Fired != 32 {
		t.Fatalf("expected exactly 32 fires before the next time check, got %d", stats.Fired)
	}
}

func TestGetNextTriggerDisabledOnlyLeavesMaxTimeUnmodified(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()
	q.Ctl(ctx, Entry[string]{Delay: -1})

	if got := GetNextTrigger([]*Queue[string]{q}, 0, 5000); got != 5000 {
		t.Fatalf("expected max_time unmodified at 5000, got %d", got)
	}
}

func TestGetNextTriggerClampsToDueEntry(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()
	q.Ctl(ctx, Entry[string]{Delay: 50})

	if got := GetNextTrigger([]*Queue[string]{q}, 0, 1_000_000); got != 50_000 {
		t.Fatalf("expected 50000, got %d", got)
	}
	if got := GetNextTrigger([]*Queue[string]{q}, 60_000, 1_000_000); got != 0 {
		t.Fatalf("expected 0 once past due, got %d", got)
	}
}

func TestStopThenStartReactivates(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	id, _ := q.Ctl(ctx, Entry[string]{Delay: 50})
	if !q.Stop(ctx, id) {
		t.Fatal("expected stop to succeed")
	}
	if _, key, _, _ := q.pq.Peek(); key != -1 {
		t.Fatalf("expected disabled entry to sort under key -1, got %d", key)
	}

	clock.Advance(200 * time.Millisecond)
	if newID := q.Start(ctx, id); newID != id {
		t.Fatalf("expected start to return the same id, got %d", newID)
	}
	_, key, _, ok := q.pq.Peek()
	if !ok || key != 250_000 {
		t.Fatalf("expected fresh trigger at 250000us (now plus the 50ms delay) after start, got %d", key)
	}
}

func TestDeleteIsIdempotentAcrossADrain(t *testing.T) {
	clock := newFakeClock(0)
	q := NewQueue[string](clock, Config{})
	ctx := context.Background()

	id, _ := q.Ctl(ctx, Entry[string]{Delay: 0})
	if !q.Delete(ctx, id) {
		t.Fatal("expected first delete to succeed")
	}
	if _, err := q.Run(ctx, "client"); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected entry removed by drain, got len %d", q.Len())
	}
	if q.Delete(ctx, id) {
		t.Fatal("expected delete of an already-removed entry to fail")
	}
}
