package kobject

import (
	"testing"

	"microkern/internal/kerr"
)

type fakePayload struct {
	data   []byte
	closed bool
}

func (f *fakePayload) Read(buf []byte, offset int64) (int, kerr.Err) {
	if offset >= int64(len(f.data)) {
		return 0, kerr.EOF
	}
	n := copy(buf, f.data[offset:])
	return n, kerr.OK
}

func (f *fakePayload) Close() kerr.Err {
	f.closed = true
	return kerr.OK
}

func TestCreateStartsAtRefOne(t *testing.T) {
	o := Create(KindVMO, "x", &fakePayload{})
	if o.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", o.RefCount())
	}
}

func TestDerefToZeroCallsClose(t *testing.T) {
	p := &fakePayload{}
	o := Create(KindVMO, "x", p)
	if err := o.Deref(); err != kerr.OK {
		t.Fatalf("Deref returned %v", err)
	}
	if !p.closed {
		t.Fatal("expected Close to be called at refcount 0")
	}
}

func TestDoubleDestroyPanics(t *testing.T) {
	o := Create(KindVMO, "x", &fakePayload{})
	o.Deref()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double destroy")
		}
	}()
	o.Deref()
}

func TestRefOnZeroPanics(t *testing.T) {
	o := Create(KindVMO, "x", &fakePayload{})
	o.Deref()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on Ref after refcount reached zero")
		}
	}()
	o.Ref()
}

func TestDispatchMissingOpReturnsENOSYS(t *testing.T) {
	o := Create(KindVMO, "x", &fakePayload{})
	if _, err := o.Write(nil, 0); err != kerr.ENOSYS {
		t.Fatalf("Write() = %v, want ENOSYS", err)
	}
}

func TestDispatchPresentOp(t *testing.T) {
	o := Create(KindVMO, "x", &fakePayload{data: []byte("hi")})
	buf := make([]byte, 2)
	n, err := o.Read(buf, 0)
	if err != kerr.OK || n != 2 || string(buf) != "hi" {
		t.Fatalf("Read() = (%d, %v), buf=%q", n, err, buf)
	}
}
