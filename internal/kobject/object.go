// Package kobject implements the refcounted, polymorphic kernel object:
// a type tag, a refcount, an operation vtable where any
// operation may be absent, and an opaque payload.
//
// One small interface per capability, implemented by a pointer-receiver
// payload type, is the usual way to express "vtable, any op may be
// absent" in Go; this package generalizes that into several small
// interfaces (Reader, Writer, ...) that a payload implements a subset of,
// checked with a type assertion at dispatch time — scaled to more
// object kinds than a single file-descriptor-shaped one.
package kobject

import (
	"sync"
	"sync/atomic"

	"microkern/internal/kerr"
)

// Kind is the object's type tag. An object's Kind never changes for its
// lifetime.
type Kind int

const (
	KindProcess Kind = iota
	KindThread
	KindChannel
	KindVMO
	KindPort
	KindEvent
	KindJob
	KindNamespaceDir
	KindInfo
	KindFile
	KindDirectory
	KindSocket
	KindPipe
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindThread:
		return "thread"
	case KindChannel:
		return "channel"
	case KindVMO:
		return "vmo"
	case KindPort:
		return "port"
	case KindEvent:
		return "event"
	case KindJob:
		return "job"
	case KindNamespaceDir:
		return "namespace-directory"
	case KindInfo:
		return "info"
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSocket:
		return "socket"
	case KindPipe:
		return "pipe"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Reader, Writer, Seeker, Closer, InfoGetter, Mapper, Readdirer, Lookuper
// are the optional vtable operations an object payload may implement. A payload
// implements whichever subset applies to it; handle_read/write/seek and
// friends type-assert for the one they need and return ENOSYS when it is
// absent.
type Reader interface {
	Read(buf []byte, offset int64) (int, kerr.Err)
}

type Writer interface {
	Write(buf []byte, offset int64) (int, kerr.Err)
}

type Seeker interface {
	Seek(offset int64, whence int) (int64, kerr.Err)
}

// Closer receives a close notification when the object's refcount drops
// to zero. It is distinct from the handle-level close.
type Closer interface {
	Close() kerr.Err
}

type InfoGetter interface {
	GetInfo(topic int, buf []byte) (int, kerr.Err)
}

type Mapper interface {
	Map(vaddrHint uintptr, offset, length int64, rights uint32) (uintptr, kerr.Err)
}

type Lookuper interface {
	Lookup(name string) (*Object, kerr.Err)
}

type Readdirer interface {
	Readdir(cursor *uint64, max int) ([]string, kerr.Err)
}

// Object is the unit of kernel-side identity. Construction via
// Create initializes the refcount to 1, matching object_create.
type Object struct {
	Kind  Kind
	Name  string // debug label only, not an identity
	Impl  interface{}
	refs  int32
	mu    sync.Mutex
	dying bool
}

// Create allocates a new object with refcount 1, wrapping impl, which
// implements whichever of the operation interfaces above apply to Kind.
func Create(kind Kind, name string, impl interface{}) *Object {
	return &Object{Kind: kind, Name: name, Impl: impl, refs: 1}
}

// Ref increments the reference count. Refcount must never
// observe 0→N: Ref is only ever valid when the caller already holds a
// live reference (e.g. duplicating a handle, or a namespace lookup
// bumping the count on an object it already holds).
func (o *Object) Ref() {
	n := atomic.AddInt32(&o.refs, 1)
	if n <= 1 {
		panic("kobject: Ref observed 0->N")
	}
}

// Deref decrements the reference count. At zero it invokes Impl's Close
// (if present) and marks the object dead; destruction is terminal.
// The final decrement — and the Close call it triggers — happens
// outside any lock on the object itself, so callers must not
// hold o's own lock across Deref; Object doesn't expose one for that
// reason, callers serialize via the handle table or object-internal lock
// instead.
func (o *Object) Deref() kerr.Err {
	n := atomic.AddInt32(&o.refs, -1)
	if n < 0 {
		panic("kobject: refcount underflow")
	}
	if n != 0 {
		return kerr.OK
	}
	o.mu.Lock()
	if o.dying {
		o.mu.Unlock()
		panic("kobject: double destroy")
	}
	o.dying = true
	o.mu.Unlock()
	if c, ok := o.Impl.(Closer); ok {
		return c.Close()
	}
	return kerr.OK
}

// RefCount returns the current reference count, for tests and debug
// introspection.
func (o *Object) RefCount() int32 {
	return atomic.LoadInt32(&o.refs)
}

// Read, Write, Seek, GetInfo, Map, Lookup, Readdir dispatch to Impl's
// optional operation, returning ENOSYS when Impl doesn't implement it —
// any subset of the vtable interfaces may be absent on a given payload.
func (o *Object) Read(buf []byte, offset int64) (int, kerr.Err) {
	r, ok := o.Impl.(Reader)
	if !ok {
		return 0, kerr.ENOSYS
	}
	return r.Read(buf, offset)
}

func (o *Object) Write(buf []byte, offset int64) (int, kerr.Err) {
	w, ok := o.Impl.(Writer)
	if !ok {
		return 0, kerr.ENOSYS
	}
	return w.Write(buf, offset)
}

func (o *Object) Seek(offset int64, whence int) (int64, kerr.Err) {
	s, ok := o.Impl.(Seeker)
	if !ok {
		return 0, kerr.ENOSYS
	}
	return s.Seek(offset, whence)
}

func (o *Object) GetInfo(topic int, buf []byte) (int, kerr.Err) {
	g, ok := o.Impl.(InfoGetter)
	if !ok {
		return 0, kerr.ENOSYS
	}
	return g.GetInfo(topic, buf)
}

func (o *Object) Map(vaddrHint uintptr, offset, length int64, rights uint32) (uintptr, kerr.Err) {
	m, ok := o.Impl.(Mapper)
	if !ok {
		return 0, kerr.ENOSYS
	}
	return m.Map(vaddrHint, offset, length, rights)
}

func (o *Object) Lookup(name string) (*Object, kerr.Err) {
	l, ok := o.Impl.(Lookuper)
	if !ok {
		return nil, kerr.ENOSYS
	}
	return l.Lookup(name)
}

func (o *Object) Readdir(cursor *uint64, max int) ([]string, kerr.Err) {
	r, ok := o.Impl.(Readdirer)
	if !ok {
		return nil, kerr.ENOSYS
	}
	return r.Readdir(cursor, max)
}
