// Package khandle implements the per-process handle table:
// a dense, small-integer-indexed capability table carrying a rights mask
// per entry, with lowest-free-slot allocation and doubling growth.
//
// Modeled on a descriptor table that wraps an interface plus a
// permission int, duplicated by copying the entry, generalized here from
// a single slot into a full growable table: a dense array keeps handle
// values small integers that are fast to validate; on growth, capacity
// doubles; on close, the slot is simply cleared.
package khandle

import (
	"microkern/internal/kerr"
	"microkern/internal/klock"
	"microkern/internal/kobject"
)

// Rights is a bitmask gating which operations a handle may drive.
type Rights uint32

const (
	READ Rights = 1 << iota
	WRITE
	EXECUTE
	MAP
	DUPLICATE
	TRANSFER
	GET_INFO
	SIGNAL
)

// Has reports whether r contains every bit of required.
func (r Rights) Has(required Rights) bool {
	return r&required == required
}

// Handle is a process-local integer capability. Invalid never names a
// live entry.
type Handle int32

const Invalid Handle = -1

type entry struct {
	obj       *kobject.Object
	rights    Rights
	transient bool
}

// Table is a per-process handle table. Access is serialized by a single
// lock — a coarser-than-per-entry lock is acceptable here, with writers
// excluding readers for the entry being mutated; a table-wide IRQLock keeps the
// dense-array growth and the lowest-free-slot scan simple and correct,
// at the cost of contention a real kernel would shard away.
type Table struct {
	lock    *klock.IRQLock
	entries []*entry
	max     int
}

const initialCapacity = 16

// DefaultMaxHandles caps how large a single process's handle table may
// grow before Insert/Attach start failing with ENOMEM.
const DefaultMaxHandles = 4096

// New allocates an empty handle table with the default capacity ceiling.
func New() *Table {
	return NewWithMax(DefaultMaxHandles)
}

// NewWithMax allocates an empty handle table that doubles capacity on
// exhaustion up to max entries, after which Insert/Attach return ENOMEM
// instead of growing further.
func NewWithMax(max int) *Table {
	if max < 1 {
		max = 1
	}
	capacity := initialCapacity
	if max < capacity {
		capacity = max
	}
	return &Table{
		lock:    klock.NewIRQLock(klock.ClassHandleTable),
		entries: make([]*entry, capacity),
		max:     max,
	}
}

// Insert adds obj to the table with the given rights, incrementing obj's
// refcount, and returns the smallest free handle index. Fails with
// ENOMEM, leaving obj's refcount untouched, if the table is already at
// its capacity ceiling.
func (t *Table) Insert(obj *kobject.Object, rights Rights) (Handle, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()

	idx, err := t.lowestFreeLocked()
	if err != kerr.OK {
		return Invalid, err
	}
	obj.Ref()
	t.entries[idx] = &entry{obj: obj, rights: rights}
	return Handle(idx), kerr.OK
}

// lowestFreeLocked finds the smallest free slot, growing the table
// (doubling, capped at max) if none is free. Returns ENOMEM once the
// table is full at max capacity.
func (t *Table) lowestFreeLocked() (int, kerr.Err) {
	for i, e := range t.entries {
		if e == nil {
			return i, kerr.OK
		}
	}
	old := len(t.entries)
	if old >= t.max {
		return 0, kerr.ENOMEM
	}
	newCap := old * 2
	if newCap > t.max {
		newCap = t.max
	}
	grown := make([]*entry, newCap)
	copy(grown, t.entries)
	t.entries = grown
	return old, kerr.OK
}

// Lookup resolves h, requiring that the entry's rights are a superset of
// required. The returned pointer is borrowed: valid for the
// lifetime of the current call, not refcounted by this lookup.
func (t *Table) Lookup(h Handle, required Rights) (*kobject.Object, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		return nil, err
	}
	if !e.rights.Has(required) {
		return nil, kerr.EPERM
	}
	return e.obj, kerr.OK
}

func (t *Table) lookupLocked(h Handle) (*entry, kerr.Err) {
	if h == Invalid || int(h) < 0 || int(h) >= len(t.entries) {
		return nil, kerr.EINVAL
	}
	e := t.entries[h]
	if e == nil {
		return nil, kerr.EINVAL
	}
	return e, kerr.OK
}

// Close removes h from the table and decrements the referenced object's
// refcount exactly once.
func (t *Table) Close(h Handle) kerr.Err {
	t.lock.Lock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		t.lock.Unlock()
		return err
	}
	t.entries[h] = nil
	t.lock.Unlock()
	return e.obj.Deref()
}

// Duplicate creates a new handle for the same object as h, with
// newRights required to be a subset of h's current rights — duplication
// never elevates.
func (t *Table) Duplicate(h Handle, newRights Rights) (Handle, kerr.Err) {
	t.lock.Lock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		t.lock.Unlock()
		return Invalid, err
	}
	if newRights&^e.rights != 0 {
		t.lock.Unlock()
		return Invalid, kerr.EINVAL
	}
	obj := e.obj
	t.lock.Unlock()

	return t.Insert(obj, newRights)
}

// SetTransient marks h as transient (or clears the mark), the
// CLOEXEC-equivalent bit: a transient handle does not survive Inherit
// into a spawned child's table.
func (t *Table) SetTransient(h Handle, transient bool) kerr.Err {
	t.lock.Lock()
	defer t.lock.Unlock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		return err
	}
	e.transient = transient
	return kerr.OK
}

// Transient reports whether h is currently marked transient.
func (t *Table) Transient(h Handle) (bool, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		return false, err
	}
	return e.transient, kerr.OK
}

// Inherit copies every non-transient entry of t into child, taking a
// fresh reference per object, preserving rights; transient entries are
// dropped, the close-on-spawn behavior spawn relies on. child's own
// handle indices are assigned independently of t's — spawn hands the
// child a disjoint table, not a shared one. Entries that don't fit under
// child's own capacity ceiling are silently dropped rather than failing
// the whole spawn, since a child table starts at the same default
// capacity a standalone process would get.
func (t *Table) Inherit(child *Table) {
	t.lock.Lock()
	entries := make([]*entry, len(t.entries))
	copy(entries, t.entries)
	t.lock.Unlock()

	for _, e := range entries {
		if e == nil || e.transient {
			continue
		}
		if _, err := child.Insert(e.obj, e.rights); err != kerr.OK {
			continue
		}
	}
}

// Rights returns the current rights mask for h, used by transfer (which
// must preserve rights across a channel send) and tests.
func (t *Table) Rights(h Handle) (Rights, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		return 0, err
	}
	return e.rights, kerr.OK
}

// Detach removes h from the table without decrementing the object's
// refcount, returning the object and its rights so the caller can move
// the reference elsewhere.
func (t *Table) Detach(h Handle, required Rights) (*kobject.Object, Rights, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()
	e, err := t.lookupLocked(h)
	if err != kerr.OK {
		return nil, 0, err
	}
	if !e.rights.Has(required) {
		return nil, 0, kerr.EPERM
	}
	t.entries[h] = nil
	return e.obj, e.rights, kerr.OK
}

// Attach inserts obj at the lowest free slot with rights, without taking
// an additional reference — the counterpart to Detach used when a
// channel message's handles land in the receiver's table. Fails with
// ENOMEM, leaving obj untouched, if the table is already at its
// capacity ceiling; the caller still owns obj's reference in that case
// and must dispose of it (e.g. by dropping the message).
func (t *Table) Attach(obj *kobject.Object, rights Rights) (Handle, kerr.Err) {
	t.lock.Lock()
	defer t.lock.Unlock()
	idx, err := t.lowestFreeLocked()
	if err != kerr.OK {
		return Invalid, err
	}
	t.entries[idx] = &entry{obj: obj, rights: rights}
	return Handle(idx), kerr.OK
}

// Len reports the table's current capacity (not occupancy), for debug
// introspection.
func (t *Table) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.entries)
}

// Occupied reports how many entries are in use, for debug introspection
// (the TopicObjGraph object_get_info topic reports it).
func (t *Table) Occupied() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	n := 0
	for _, e := range t.entries {
		if e != nil {
			n++
		}
	}
	return n
}
