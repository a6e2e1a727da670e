package proc

import (
	"sync"
	"sync/atomic"
)

// Accounting accumulates per-thread and per-process CPU-time usage, in
// nanoseconds. An embedded lock guards Merge and Totals, while AddUser,
// AddSys and Snapshot use atomics without taking that lock. The scheduler
// does not charge time on its ticks; the counters change only through
// AddUser, AddSys and Merge.
type Accounting struct {
	mu      sync.Mutex
	userNs  int64
	sysNs   int64
}

// AddUser adds delta nanoseconds of user-mode runtime.
func (a *Accounting) AddUser(delta int64) {
	atomic.AddInt64(&a.userNs, delta)
}

// AddSys adds delta nanoseconds of kernel-mode runtime (scheduling
// overhead, syscall handling).
func (a *Accounting) AddSys(delta int64) {
	atomic.AddInt64(&a.sysNs, delta)
}

// Snapshot returns (userNs, sysNs) as of now.
func (a *Accounting) Snapshot() (int64, int64) {
	return atomic.LoadInt64(&a.userNs), atomic.LoadInt64(&a.sysNs)
}

// Merge folds n's counters into a, used when a process absorbs a reaped
// thread's final accounting into its process-level usage rollup.
func (a *Accounting) Merge(n *Accounting) {
	un, sn := n.Snapshot()
	a.mu.Lock()
	a.userNs += un
	a.sysNs += sn
	a.mu.Unlock()
}

// Totals returns the merged totals under lock, for a process-wide report.
func (a *Accounting) Totals() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userNs, a.sysNs
}
