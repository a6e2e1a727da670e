package proc

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func TestSpawnPlacesOnLeastLoadedCPU(t *testing.T) {
	sched := NewScheduler(2, time.Second, testLog())
	p := NewProcess(1)
	t1 := sched.Spawn(p)
	t2 := sched.Spawn(p)
	if t1.CPU() == t2.CPU() {
		t.Fatalf("expected threads spread across CPUs, both landed on %v", t1.CPU())
	}
}

func TestFirstSpawnedThreadRunsImmediately(t *testing.T) {
	sched := NewScheduler(1, time.Second, testLog())
	p := NewProcess(1)
	th := sched.Spawn(p)
	if th.State() != Running {
		t.Fatalf("State() = %v, want Running", th.State())
	}
}

func TestTickRotatesRunnableThreads(t *testing.T) {
	sched := NewScheduler(1, time.Second, testLog())
	p := NewProcess(1)
	t1 := sched.Spawn(p)
	t2 := sched.Spawn(p)

	if t1.State() != Running || t2.State() != Runnable {
		t.Fatalf("initial states: t1=%v t2=%v", t1.State(), t2.State())
	}
	sched.Tick()
	if t2.State() != Running {
		t.Fatalf("after Tick, t2.State() = %v, want Running", t2.State())
	}
	if t1.State() != Runnable {
		t.Fatalf("after Tick, t1.State() = %v, want Runnable", t1.State())
	}
}

func TestBlockAndWake(t *testing.T) {
	sched := NewScheduler(1, time.Second, testLog())
	p := NewProcess(1)
	th := sched.Spawn(p)

	sched.Block(th)
	if th.State() != Blocked {
		t.Fatalf("State() after Block = %v, want Blocked", th.State())
	}
	sched.Wake(th)
	if th.State() != Runnable && th.State() != Running {
		t.Fatalf("State() after Wake = %v, want Runnable or Running", th.State())
	}
}

func TestExitFoldsAccountingIntoProcess(t *testing.T) {
	sched := NewScheduler(1, time.Second, testLog())
	p := NewProcess(1)
	th := sched.Spawn(p)
	th.Acct.AddUser(1000)

	done := make(chan struct{})
	go func() {
		p.WaitExit()
		close(done)
	}()

	sched.Exit(th, 7)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitExit did not return after last thread exited")
	}

	exited, code := p.Exited()
	if !exited || code != 7 {
		t.Fatalf("Exited() = (%v, %d), want (true, 7)", exited, code)
	}
	userNs, _ := p.Acct.Totals()
	if userNs != 1000 {
		t.Fatalf("rolled-up user time = %d, want 1000", userNs)
	}
}

func TestYieldOnlyAffectsRunningThread(t *testing.T) {
	sched := NewScheduler(1, time.Second, testLog())
	p := NewProcess(1)
	th := sched.Spawn(p)
	// Yielding a thread that's already Running should move it to the
	// back and dispatch the next one (itself, since it's alone).
	sched.Yield(th)
	if th.State() != Running {
		t.Fatalf("State() after solo Yield = %v, want Running", th.State())
	}
}
