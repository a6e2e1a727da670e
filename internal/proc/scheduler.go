// Package proc implements processes, threads, per-CPU run queues and the
// preemptive scheduler. Process, Thread, CPU and
// Scheduler live in one package, avoiding an import cycle a
// process/scheduler split would otherwise create.
package proc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cloudwego/gopkg/concurrency/gopool"
	"github.com/cloudwego/gopkg/container/ring"
	"github.com/sirupsen/logrus"

	"microkern/internal/waitq"
)

// Scheduler owns a fixed set of CPUs and assigns/reassigns threads among
// their run queues. The CPU topology is held in a cloudwego/gopkg ring —
// the same "fixed set of slots visited in rotation" shape the scheduler
// needs for least-loaded placement.
type Scheduler struct {
	cpus    *ring.Ring[*CPU]
	nextTid uint64
	quantum time.Duration

	reaper *gopool.GoPool
	log    *logrus.Entry

	stopCh chan struct{}
	done   chan struct{}

	blocked waitq.Queue // unused; Process.WaitExit parks on its own channels
}

// NewScheduler builds a scheduler over ncpus CPUs, each preempted every
// quantum.
func NewScheduler(ncpus int, quantum time.Duration, log *logrus.Entry) *Scheduler {
	if ncpus < 1 {
		ncpus = 1
	}
	cpus := make([]*CPU, ncpus)
	for i := range cpus {
		cpus[i] = newCPU(i)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		cpus:    ring.NewFromSlice(cpus),
		quantum: quantum,
		reaper:  gopool.NewGoPool("reaper", nil),
		log:     log,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// CPUCount reports how many CPUs this scheduler manages.
func (s *Scheduler) CPUCount() int {
	return s.cpus.Len()
}

// leastLoaded scans every CPU and returns the one with the smallest Load
// (queued plus running threads).
func (s *Scheduler) leastLoaded() *CPU {
	var best *CPU
	bestLoad := -1
	s.cpus.Do(func(c **CPU) {
		l := (*c).Load()
		if bestLoad == -1 || l < bestLoad {
			bestLoad = l
			best = *c
		}
	})
	return best
}

// Spawn creates a new thread in proc, places it on the least-loaded CPU,
// and marks it Runnable.
func (s *Scheduler) Spawn(p *Process) *Thread {
	id := atomic.AddUint64(&s.nextTid, 1)
	t := newThread(id, p)
	p.addThread(t)
	cpu := s.leastLoaded()
	cpu.enqueue(t)
	s.kick(cpu)
	return t
}

// kick dispatches the head of cpu's run queue if the CPU is idle.
func (s *Scheduler) kick(cpu *CPU) {
	cpu.mu.Lock()
	cpu.dispatchLocked()
	cpu.mu.Unlock()
}

// Yield voluntarily relinquishes t's CPU, moving it to the back of the
// run queue if it is currently Running.
func (s *Scheduler) Yield(t *Thread) {
	if t.cpu == nil || t.State() != Running {
		return
	}
	t.cpu.preempt()
}

// Block transitions t from Running to Blocked and dispatches the next
// runnable thread on its CPU. The caller is responsible for having
// already enqueued t on whatever waitq.Queue it's blocking on, per the
// lost-wakeup-safe pattern: enqueue first, then Block.
func (s *Scheduler) Block(t *Thread) {
	t.setState(Blocked)
	if t.cpu != nil {
		t.cpu.removeRunning(t)
	}
}

// Wake transitions t from Blocked back to Runnable and re-enqueues it on
// its CPU.
func (s *Scheduler) Wake(t *Thread) {
	if t.State() != Blocked {
		return
	}
	if t.cpu == nil {
		return
	}
	t.cpu.enqueue(t)
	s.kick(t.cpu)
}

// Exit transitions t to Exited, removes it from scheduling, folds its
// accounting into its process, and — once every thread in the process
// has exited — marks the process exited. The CPU slot is released right
// away; the reap itself (recording the exit code, dropping the thread
// from its process and folding its accounting) runs on the reaper pool so
// a busy exit-storm doesn't stall the caller of Exit (grounded on
// gopool.GoPool's design: background work that falls back to a plain
// goroutine if the pool is saturated).
func (s *Scheduler) Exit(t *Thread, code int) {
	t.ExitCode = code
	t.setState(Exited)
	if t.cpu != nil {
		t.cpu.removeRunning(t)
	}
	s.reaper.Go(func() {
		t.Proc.SetExitCode(code)
		last := t.Proc.removeThread(t)
		if last {
			s.log.WithField("pid", t.Proc.ID).Debug("process fully exited")
		}
	})
}

// Tick preempts every CPU's currently running thread (if still Running)
// and dispatches the next one, implementing round-robin fairness so
// every runnable thread makes progress within a bounded number of ticks.
func (s *Scheduler) Tick() {
	s.cpus.Do(func(c **CPU) {
		(*c).preempt()
	})
}

// Run starts the timer goroutine that calls Tick every quantum, until
// ctx is canceled or Stop is called. It returns immediately; callers
// that want to block until the timer exits should wait on ctx.Done() or
// the channel returned by their own errgroup.
func (s *Scheduler) Run(ctx context.Context) {
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.quantum)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-t.C:
				s.Tick()
			}
		}
	}()
}

// Stop halts the timer goroutine started by Run and waits for it to
// exit, for at most two quanta. If Run was never called, Stop still waits
// those two quanta before returning; a second Stop returns at once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
	select {
	case <-s.done:
	case <-time.After(s.quantum * 2):
	}
}
