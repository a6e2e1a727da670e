package proc

import (
	"sync"

	"microkern/internal/khandle"
	"microkern/internal/vmo"
)

// Process groups one or more threads under a shared handle table and
// address space. The page-map and descriptor-array concerns a process
// would otherwise own directly are already factored into khandle.Table
// and vmo.HostAddressSpace; Process here is mostly bookkeeping that ties
// them to a set of threads and a rolled-up accounting record.
type Process struct {
	ID        uint64
	Handles   *khandle.Table
	AddrSpace *vmo.HostAddressSpace
	Acct      Accounting

	mu       sync.Mutex
	threads  map[uint64]*Thread
	exited   bool
	exitCode int
	waiters  []chan struct{}
}

// MaxHandlesPerProcess caps how large a single process's handle table
// may grow before its Insert/Attach calls start failing with ENOMEM.
// kernel.Boot overwrites this from Config.HandleTableCapacity before any
// process is created; it stays at khandle's own default otherwise
// (notably for every test in this package, which calls NewProcess
// directly without going through kernel.Boot).
var MaxHandlesPerProcess = khandle.DefaultMaxHandles

// NewProcess allocates a process with a fresh handle table, capped at
// MaxHandlesPerProcess, and address space.
func NewProcess(id uint64) *Process {
	return &Process{
		ID:        id,
		Handles:   khandle.NewWithMax(MaxHandlesPerProcess),
		AddrSpace: vmo.NewAddressSpace(),
		threads:   make(map[uint64]*Thread),
	}
}

func (p *Process) addThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[t.ID] = t
}

// removeThread drops t from the process's thread set and folds its final
// accounting into the process total. Returns true if this was the last
// thread, meaning the process has now fully exited.
func (p *Process) removeThread(t *Thread) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.threads, t.ID)
	p.Acct.Merge(&t.Acct)
	if len(p.threads) == 0 {
		p.exited = true
		for _, w := range p.waiters {
			close(w)
		}
		p.waiters = nil
		return true
	}
	return false
}

// ThreadCount reports how many threads are currently live.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// SetExitCode records the process's exit status. Each call made before
// the process has fully exited overwrites the previous one, so the last
// thread to exit decides the final value; later calls are ignored.
func (p *Process) SetExitCode(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.exitCode = code
	}
}

// Exited reports whether every thread in the process has exited, and the
// recorded exit code.
func (p *Process) Exited() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitCode
}

// WaitExit blocks the caller until the process has fully exited. Used by
// a parent's wait-style syscall; returns immediately if already exited.
func (p *Process) WaitExit() {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()
	<-ch
}
