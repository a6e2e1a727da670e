package waitq

import (
	"context"
	"testing"
	"time"
)

func TestWakeDeliversToOldestWaiter(t *testing.T) {
	var q Queue
	w1 := q.Enqueue()
	w2 := q.Enqueue()

	if n := q.Wake(1); n != 1 {
		t.Fatalf("Wake(1) = %d, want 1", n)
	}

	if outcome := w1.Wait(context.Background(), time.Now().Add(50*time.Millisecond)); outcome != Woken {
		t.Fatalf("w1 outcome = %v, want Woken", outcome)
	}
	if outcome := w2.Wait(context.Background(), time.Now().Add(20*time.Millisecond)); outcome != TimedOut {
		t.Fatalf("w2 outcome = %v, want TimedOut (only one waiter should have been woken)", outcome)
	}
}

func TestWaitTimesOutWhenNeverWoken(t *testing.T) {
	var q Queue
	w := q.Enqueue()
	outcome := w.Wait(context.Background(), time.Now().Add(20*time.Millisecond))
	if outcome != TimedOut {
		t.Fatalf("got %v, want TimedOut", outcome)
	}
	if q.Len() != 0 {
		t.Fatalf("waiter should be removed from queue after timeout, len=%d", q.Len())
	}
}

func TestWaitCanceled(t *testing.T) {
	var q Queue
	w := q.Enqueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if outcome := w.Wait(ctx, time.Time{}); outcome != Canceled {
		t.Fatalf("got %v, want Canceled", outcome)
	}
}

func TestWakeAllWakesEveryWaiter(t *testing.T) {
	var q Queue
	const n = 5
	waiters := make([]*Waiter, n)
	for i := range waiters {
		waiters[i] = q.Enqueue()
	}
	if woke := q.WakeAll(); woke != n {
		t.Fatalf("WakeAll() = %d, want %d", woke, n)
	}
	for _, w := range waiters {
		if outcome := w.Wait(context.Background(), time.Now().Add(time.Second)); outcome != Woken {
			t.Fatalf("waiter not woken: %v", outcome)
		}
	}
}
