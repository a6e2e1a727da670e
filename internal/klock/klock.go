// Package klock provides the locking primitives the rest of the kernel
// builds on: an IRQ-disciplined spinlock and a declared lock-order check.
//
// There are no real interrupts here (the interrupt controller is treated
// as an external collaborator); IRQLock instead models the discipline a
// hand-rolled page-map lock enforces by hand (acquire, mark held,
// assert held where required, release), with a debug flag guarding the
// held-state bookkeeping. Debug builds (DebugAsserts) pay
// for this bookkeeping; release builds can flip it off.
package klock

import "sync"

// DebugAsserts gates the extra held-tracking and lock-order checks,
// useful for finding deadlock bugs during development, as a runtime
// switch instead of commented-out code.
var DebugAsserts = true

// Class orders lock acquisition so a fixed order can be checked in debug
// builds: process → handle-table → object → object-internal.
type Class int

const (
	ClassProcess Class = iota
	ClassHandleTable
	ClassObject
	ClassObjectInternal
)

// IRQLock is a short spinlock meant to be held briefly with interrupts
// conceptually disabled; sleeping while holding one is forbidden.
// It panics on misuse ("double lock", wrong held state) instead of
// deadlocking silently.
type IRQLock struct {
	mu    sync.Mutex
	held  bool
	class Class
}

// NewIRQLock builds a lock tagged with its position in the fixed
// acquisition order.
func NewIRQLock(class Class) *IRQLock {
	return &IRQLock{class: class}
}

func (l *IRQLock) Lock() {
	l.mu.Lock()
	if DebugAsserts {
		if l.held {
			panic("klock: double lock")
		}
		l.held = true
	}
}

func (l *IRQLock) Unlock() {
	if DebugAsserts {
		if !l.held {
			panic("klock: unlock of unheld lock")
		}
		l.held = false
	}
	l.mu.Unlock()
}

// AssertHeld panics unless the lock is currently held. Ownership is not
// tracked, so a lock held by another goroutine also passes. Used to
// document and enforce a precondition on internal helpers.
func (l *IRQLock) AssertHeld() {
	if DebugAsserts && !l.held {
		panic("klock: lock must be held")
	}
}

// AssertOrder panics if inner comes before outer in the fixed acquisition
// order, reporting a lock-order violation. It is deliberately simple: a
// per-goroutine stack of held locks would need goroutine-local storage,
// which Go does not expose, so a caller that nests locks across classes
// has to call AssertOrder explicitly at the nesting point. No kernel
// package calls it yet; only its own tests do.
func AssertOrder(outer, inner Class) {
	if outer > inner {
		panic("klock: lock order violation")
	}
}
