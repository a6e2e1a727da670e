// Package namespace implements the global path-to-object directory:
// literal path comparison, stateless cursor iteration,
// insertion-stable ordering, and virtual directory objects that mount one
// namespace region under another.
//
// Modeled on a bucket-style table with Get/Set/Del/Iter, generalized
// from a lock-free single-bucket design — unnecessary here, since lookups also
// need to bump a refcount under the same lock that protects the map —
// into a plain RWMutex-guarded map plus an insertion-order slice for
// stable iteration.
package namespace

import (
	"strings"
	"sync"

	"microkern/internal/kerr"
	"microkern/internal/kobject"
)

// Namespace is the global path-keyed object directory.
type Namespace struct {
	mu      sync.RWMutex
	entries map[string]*kobject.Object
	order   []string
}

// New returns an empty namespace.
func New() *Namespace {
	return &Namespace{entries: make(map[string]*kobject.Object)}
}

// validPath rejects empty components; paths are otherwise compared
// literally, with no normalization.
func validPath(path string) bool {
	if path == "" {
		return false
	}
	for i, comp := range strings.Split(path, "/") {
		// Only the empty component before a leading "/" is allowed.
		if comp == "" && !(i == 0 && strings.HasPrefix(path, "/")) {
			return false
		}
	}
	return true
}

// Register publishes obj at path, taking a reference that keeps obj alive
// for as long as it stays published. Fails with EEXIST if path is already
// bound.
func (ns *Namespace) Register(path string, obj *kobject.Object) kerr.Err {
	if !validPath(path) {
		return kerr.EINVAL
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if _, ok := ns.entries[path]; ok {
		return kerr.EEXIST
	}
	obj.Ref()
	ns.entries[path] = obj
	ns.order = append(ns.order, path)
	return kerr.OK
}

// Lookup resolves path, incrementing the returned object's refcount.
func (ns *Namespace) Lookup(path string) (*kobject.Object, kerr.Err) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	obj, ok := ns.entries[path]
	if !ok {
		return nil, kerr.ENONAME
	}
	obj.Ref()
	return obj, kerr.OK
}

// Unregister removes path, releasing the reference Register took. Not
// part of spec.md's syscall catalogue; no syscall or kernel shutdown path
// calls it.
func (ns *Namespace) Unregister(path string) kerr.Err {
	ns.mu.Lock()
	obj, ok := ns.entries[path]
	if !ok {
		ns.mu.Unlock()
		return kerr.ENONAME
	}
	delete(ns.entries, path)
	for i, p := range ns.order {
		if p == path {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	ns.mu.Unlock()
	return obj.Deref()
}

// Cursor is an opaque iteration position: stateless
// from the caller's perspective, just an index into the insertion-stable
// order.
type Cursor struct {
	next int
}

// Readdir returns up to n entries starting at cursor, advancing it.
// Ordering is insertion-stable.
func (ns *Namespace) Readdir(cursor *Cursor, n int) []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if cursor.next >= len(ns.order) {
		return nil
	}
	end := cursor.next + n
	if end > len(ns.order) {
		end = len(ns.order)
	}
	out := make([]string, end-cursor.next)
	copy(out, ns.order[cursor.next:end])
	cursor.next = end
	return out
}

// dir implements kobject.Lookuper/kobject.Readdirer over a subtree of the
// namespace rooted at prefix, so higher-level code can mount one
// namespace region under another.
type dir struct {
	ns     *Namespace
	prefix string
}

// CreateDir wraps a subtree of ns under prefix as a kernel object with
// lookup and readdir operations.
func CreateDir(ns *Namespace, prefix string) *kobject.Object {
	return kobject.Create(kobject.KindNamespaceDir, prefix, &dir{ns: ns, prefix: prefix})
}

func (d *dir) full(name string) string {
	if strings.HasSuffix(d.prefix, "/") {
		return d.prefix + name
	}
	return d.prefix + "/" + name
}

func (d *dir) Lookup(name string) (*kobject.Object, kerr.Err) {
	return d.ns.Lookup(d.full(name))
}

func (d *dir) Readdir(cursor *uint64, max int) ([]string, kerr.Err) {
	d.ns.mu.RLock()
	defer d.ns.mu.RUnlock()
	var matches []string
	for _, p := range d.ns.order {
		if strings.HasPrefix(p, d.prefix) {
			matches = append(matches, strings.TrimPrefix(p, d.prefix))
		}
	}
	start := int(*cursor)
	if start >= len(matches) {
		return nil, kerr.OK
	}
	end := start + max
	if end > len(matches) {
		end = len(matches)
	}
	*cursor = uint64(end)
	return matches[start:end], kerr.OK
}
