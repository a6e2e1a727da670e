package khandle

import (
	"testing"

	"microkern/internal/kerr"
	"microkern/internal/kobject"
)

func newObj() *kobject.Object {
	return kobject.Create(kobject.KindVMO, "t", struct{}{})
}

func TestInsertLookupClose(t *testing.T) {
	tbl := New()
	o := newObj()
	h, insErr := tbl.Insert(o, READ|WRITE)
	if insErr != kerr.OK {
		t.Fatalf("Insert() = %v", insErr)
	}
	o.Deref() // the table's reference is now the only one

	got, err := tbl.Lookup(h, READ)
	if err != kerr.OK || got != o {
		t.Fatalf("Lookup() = (%v, %v)", got, err)
	}

	if _, err := tbl.Lookup(h, EXECUTE); err != kerr.EPERM {
		t.Fatalf("Lookup() with missing rights = %v, want EPERM", err)
	}

	if err := tbl.Close(h); err != kerr.OK {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := tbl.Lookup(h, 0); err != kerr.EINVAL {
		t.Fatalf("Lookup() after close = %v, want EINVAL", err)
	}
	if o.RefCount() != 0 {
		t.Fatalf("RefCount() after close = %d, want 0", o.RefCount())
	}
}

func TestLowestFreeSlotReuse(t *testing.T) {
	tbl := New()
	h0, _ := tbl.Insert(newObj(), READ)
	h1, _ := tbl.Insert(newObj(), READ)
	tbl.Close(h0)
	h2, _ := tbl.Insert(newObj(), READ)
	if h2 != h0 {
		t.Fatalf("expected reuse of lowest free slot %d, got %d", h0, h2)
	}
	if h1 == h2 {
		t.Fatal("h1 and h2 should not collide")
	}
}

func TestGrowthBeyondInitialCapacity(t *testing.T) {
	tbl := New()
	var handles []Handle
	for i := 0; i < initialCapacity+4; i++ {
		h, err := tbl.Insert(newObj(), READ)
		if err != kerr.OK {
			t.Fatalf("Insert() at i=%d = %v", i, err)
		}
		handles = append(handles, h)
	}
	for i, h := range handles {
		if int(h) != i {
			t.Fatalf("handle %d got index %d", i, h)
		}
	}
	if tbl.Len() < initialCapacity+4 {
		t.Fatalf("table did not grow: len=%d", tbl.Len())
	}
}

func TestInsertFailsWithENOMEMAtCapacity(t *testing.T) {
	tbl := NewWithMax(4)
	var handles []Handle
	for i := 0; i < 4; i++ {
		h, err := tbl.Insert(newObj(), READ)
		if err != kerr.OK {
			t.Fatalf("Insert() at i=%d = %v", i, err)
		}
		handles = append(handles, h)
	}
	if _, err := tbl.Insert(newObj(), READ); err != kerr.ENOMEM {
		t.Fatalf("Insert() past capacity = %v, want ENOMEM", err)
	}
	// Closing one slot frees it back up.
	tbl.Close(handles[0])
	if _, err := tbl.Insert(newObj(), READ); err != kerr.OK {
		t.Fatalf("Insert() after Close() = %v, want OK", err)
	}
}

func TestAttachFailsWithENOMEMAtCapacity(t *testing.T) {
	tbl := NewWithMax(1)
	if _, err := tbl.Insert(newObj(), READ); err != kerr.OK {
		t.Fatalf("Insert() = %v", err)
	}
	if _, err := tbl.Attach(newObj(), READ); err != kerr.ENOMEM {
		t.Fatalf("Attach() past capacity = %v, want ENOMEM", err)
	}
}

func TestDuplicateCannotElevateRights(t *testing.T) {
	tbl := New()
	h, _ := tbl.Insert(newObj(), READ)
	if _, err := tbl.Duplicate(h, READ|WRITE); err != kerr.EINVAL {
		t.Fatalf("Duplicate() with elevated rights = %v, want EINVAL", err)
	}
	dup, err := tbl.Duplicate(h, READ)
	if err != kerr.OK {
		t.Fatalf("Duplicate() = %v", err)
	}
	if dup == h {
		t.Fatal("duplicate should be a distinct handle")
	}
}

func TestDetachMovesRefWithoutDerefing(t *testing.T) {
	tbl := New()
	o := newObj()
	h, _ := tbl.Insert(o, READ|TRANSFER)
	o.Deref() // the table's reference is now the only one
	obj, rights, err := tbl.Detach(h, TRANSFER)
	if err != kerr.OK {
		t.Fatalf("Detach() = %v", err)
	}
	if obj != o || rights != READ|TRANSFER {
		t.Fatalf("Detach() returned (%v, %v)", obj, rights)
	}
	if o.RefCount() != 1 {
		t.Fatalf("RefCount() after detach = %d, want 1 (moved, not dropped)", o.RefCount())
	}
	if _, err := tbl.Lookup(h, 0); err != kerr.EINVAL {
		t.Fatal("handle should no longer resolve after detach")
	}
}

func TestInheritDropsTransientHandles(t *testing.T) {
	parent := New()
	durable := newObj()
	transient := newObj()

	hDurable, err := parent.Insert(durable, READ)
	if err != kerr.OK {
		t.Fatalf("Insert(durable) = %v", err)
	}
	hTransient, err := parent.Insert(transient, READ)
	if err != kerr.OK {
		t.Fatalf("Insert(transient) = %v", err)
	}
	if err := parent.SetTransient(hTransient, true); err != kerr.OK {
		t.Fatalf("SetTransient() = %v", err)
	}
	// Drop the creator references so only the parent table holds each object.
	durable.Deref()
	transient.Deref()

	child := New()
	parent.Inherit(child)

	if got, err := child.Lookup(0, READ); err != kerr.OK || got != durable {
		t.Fatalf("child.Lookup(durable's slot) = (%v, %v), want durable handle", got, err)
	}
	if child.Occupied() != 1 {
		t.Fatalf("child.Occupied() = %d, want 1 (transient handle not inherited)", child.Occupied())
	}
	if durable.RefCount() != 2 {
		t.Fatalf("durable.RefCount() after inherit = %d, want 2 (parent + child)", durable.RefCount())
	}
	if transient.RefCount() != 1 {
		t.Fatalf("transient.RefCount() after inherit = %d, want 1 (not inherited)", transient.RefCount())
	}

	// The parent's own copy of each handle is untouched by Inherit.
	if _, err := parent.Lookup(hDurable, READ); err != kerr.OK {
		t.Fatalf("parent.Lookup(hDurable) after inherit = %v", err)
	}
	if _, err := parent.Lookup(hTransient, READ); err != kerr.OK {
		t.Fatalf("parent.Lookup(hTransient) after inherit = %v, transient only affects inheritance", err)
	}
}

func TestAttachDoesNotDoubleRef(t *testing.T) {
	tbl := New()
	o := newObj()
	h, err := tbl.Attach(o, READ)
	if err != kerr.OK {
		t.Fatalf("Attach() = %v", err)
	}
	if o.RefCount() != 1 {
		t.Fatalf("RefCount() after attach = %d, want 1", o.RefCount())
	}
	got, err := tbl.Lookup(h, READ)
	if err != kerr.OK || got != o {
		t.Fatalf("Lookup() after attach = (%v, %v)", got, err)
	}
}
