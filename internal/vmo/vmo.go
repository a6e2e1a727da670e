// Package vmo implements anonymous, page-granular virtual memory objects
// and their mapping into process address spaces.
//
// Modeled on a physical page allocator with refcounted pages reached
// through a narrow interface, paired with an address space that
// installs/removes page-table entries and shoots TLBs on unmap. Real
// page tables and a real physical allocator are out of scope;
// PageAllocator is the narrow contract a bring-up layer would implement
// against real hardware, and HostAddressSpace here is the host-memory
// stand-in that makes the rest of the kernel runnable and testable today.
package vmo

import (
	"sort"
	"sync"

	"microkern/internal/kerr"
	"microkern/internal/kobject"
)

// PageSize is the frame size used throughout (4KiB pages).
const PageSize = 4096

// Page is one zero-initialized, page-sized frame.
type Page [PageSize]byte

// PageAllocator hands out zeroed pages.
type PageAllocator interface {
	AllocZero() *Page
	Free(*Page)
}

// hostAllocator backs VMOs with ordinary Go memory; the real kernel would
// plug in a physical-frame allocator here instead.
type hostAllocator struct{}

func (hostAllocator) AllocZero() *Page { return &Page{} }
func (hostAllocator) Free(*Page)       {}

// DefaultAllocator is the host-memory PageAllocator used when no other
// is supplied; tests and cmd/simkernel use it directly.
var DefaultAllocator PageAllocator = hostAllocator{}

// Prot mirrors the READ/WRITE/EXECUTE subset of khandle.Rights relevant
// to a mapping's protection bits.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// Flags configures a VMO at creation time. Currently unused beyond
// documenting intent (VMOs are always anonymous; no demand-paged file
// backing), kept as a struct so future flags don't
// change the Create signature.
type Flags struct{}

// mapping records one active mapping of a VMO into an address space, so a
// shrinking resize can find and invalidate every affected mapping before
// freeing pages.
type mapping struct {
	as     *HostAddressSpace
	vaddr  uintptr
	offset int64
	length int64
}

// VMO is an anonymous, page-backed memory object.
type VMO struct {
	mu       sync.Mutex
	size     int64
	pages    []*Page // index i may be nil until first write (lazy zero-fill)
	alloc    PageAllocator
	mappings []*mapping
}

// Create allocates a VMO of the given size in bytes; the page array
// length is ⌈size/page_size⌉, pages themselves are allocated
// lazily on first write.
func Create(size int64, _ Flags) (*VMO, kerr.Err) {
	if size < 0 {
		return nil, kerr.EINVAL
	}
	return CreateWithAllocator(size, DefaultAllocator)
}

// CreateWithAllocator is Create with an explicit PageAllocator, for tests
// that want to observe allocation traffic.
func CreateWithAllocator(size int64, alloc PageAllocator) (*VMO, kerr.Err) {
	if size < 0 {
		return nil, kerr.EINVAL
	}
	n := pageCount(size)
	return &VMO{size: size, pages: make([]*Page, n), alloc: alloc}, kerr.OK
}

func pageCount(size int64) int {
	return int((size + PageSize - 1) / PageSize)
}

// Size returns the VMO's current size in bytes.
func (v *VMO) Size() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// Read copies up to len(buf) bytes starting at offset. Reading from a
// never-written page returns zeros; reading at or past size is rejected.
func (v *VMO) Read(buf []byte, offset int64) (int, kerr.Err) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if offset < 0 || offset > v.size {
		return 0, kerr.EINVAL
	}
	n := int64(len(buf))
	if offset+n > v.size {
		return 0, kerr.EINVAL
	}
	var done int64
	for done < n {
		pageIdx := (offset + done) / PageSize
		pageOff := (offset + done) % PageSize
		chunk := PageSize - pageOff
		if remain := n - done; chunk > remain {
			chunk = remain
		}
		if pg := v.pages[pageIdx]; pg != nil {
			copy(buf[done:done+chunk], pg[pageOff:pageOff+chunk])
		} else {
			for i := int64(0); i < chunk; i++ {
				buf[done+i] = 0
			}
		}
		done += chunk
	}
	return int(n), kerr.OK
}

// Write copies len(buf) bytes into the VMO starting at offset, allocating
// backing pages on demand.
func (v *VMO) Write(buf []byte, offset int64) (int, kerr.Err) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if offset < 0 {
		return 0, kerr.EINVAL
	}
	n := int64(len(buf))
	if offset+n > v.size {
		return 0, kerr.EINVAL
	}
	var done int64
	for done < n {
		pageIdx := (offset + done) / PageSize
		pageOff := (offset + done) % PageSize
		chunk := PageSize - pageOff
		if remain := n - done; chunk > remain {
			chunk = remain
		}
		pg := v.pages[pageIdx]
		if pg == nil {
			pg = v.alloc.AllocZero()
			v.pages[pageIdx] = pg
		}
		copy(pg[pageOff:pageOff+chunk], buf[done:done+chunk])
		done += chunk
	}
	return int(n), kerr.OK
}

// Resize grows or shrinks the VMO. Growing zero-extends (new pages stay
// nil until written, same as a freshly created VMO). Shrinking unmaps
// the truncated range from every active mapping first, then frees the
// backing frames.
func (v *VMO) Resize(newSize int64) kerr.Err {
	if newSize < 0 {
		return kerr.EINVAL
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if newSize < v.size {
		if err := v.invalidateRangeLocked(newSize, v.size-newSize); err != kerr.OK {
			return err
		}
		newCount := pageCount(newSize)
		for i := newCount; i < len(v.pages); i++ {
			if v.pages[i] != nil {
				v.alloc.Free(v.pages[i])
			}
		}
		v.pages = v.pages[:newCount]
	} else if newSize > v.size {
		newCount := pageCount(newSize)
		if newCount > len(v.pages) {
			grown := make([]*Page, newCount)
			copy(grown, v.pages)
			v.pages = grown
		}
	}
	v.size = newSize
	return kerr.OK
}

// invalidateRangeLocked removes page-table entries for [offset,
// offset+length) from every mapping that overlaps it — the equivalent of
// shooting down TLB entries on every CPU where the address space is
// loaded, modeled here as calling HostAddressSpace.invalidate, which just drops
// the host-memory view of those pages.
func (v *VMO) invalidateRangeLocked(offset, length int64) kerr.Err {
	for _, m := range v.mappings {
		overlapStart := max64(offset, m.offset)
		overlapEnd := min64(offset+length, m.offset+m.length)
		if overlapStart >= overlapEnd {
			continue
		}
		vaddr := m.vaddr + uintptr(overlapStart-m.offset)
		if err := m.as.invalidate(vaddr, overlapEnd-overlapStart); err != kerr.OK {
			return err
		}
	}
	return kerr.OK
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Map installs [offset, offset+length) of v into as at vaddrHint (or
// wherever as picks if the hint is zero), with protection derived from
// prot. A hint overlapping an existing mapping in as is rejected with
// EINVAL. The
// installed region keeps a reference to v and indexes through v.pages on
// every access instead of snapshotting page pointers, so a page
// allocated lazily by a write through either view is visible through the
// other.
func (v *VMO) Map(as *HostAddressSpace, vaddrHint uintptr, offset, length int64, prot Prot) (uintptr, kerr.Err) {
	v.mu.Lock()
	if offset < 0 || length <= 0 || offset+length > v.size {
		v.mu.Unlock()
		return 0, kerr.EINVAL
	}
	v.mu.Unlock()

	vaddr, err := as.install(vaddrHint, prot, v, offset, length)
	if err != kerr.OK {
		return 0, err
	}

	v.mu.Lock()
	v.mappings = append(v.mappings, &mapping{as: as, vaddr: vaddr, offset: offset, length: length})
	v.mu.Unlock()
	return vaddr, kerr.OK
}

// Unmap removes the mapping starting at vaddr in as.
func (v *VMO) Unmap(as *HostAddressSpace, vaddr uintptr, length int64) kerr.Err {
	if err := as.invalidate(vaddr, length); err != kerr.OK {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.mappings {
		if m.as == as && m.vaddr == vaddr {
			v.mappings = append(v.mappings[:i], v.mappings[i+1:]...)
			return kerr.OK
		}
	}
	return kerr.EINVAL
}

// AsObject wraps v as a kobject.Object of KindVMO implementing Reader,
// Writer and InfoGetter, so it can live behind a handle. It does not
// implement Mapper; mapping goes through UnwrapObject and (*VMO).Map.
func (v *VMO) AsObject(name string) *kobject.Object {
	return kobject.Create(kobject.KindVMO, name, &vmoObject{v: v})
}

type vmoObject struct{ v *VMO }

func (o *vmoObject) Read(buf []byte, offset int64) (int, kerr.Err)  { return o.v.Read(buf, offset) }
func (o *vmoObject) Write(buf []byte, offset int64) (int, kerr.Err) { return o.v.Write(buf, offset) }
// Unwrap returns the underlying *VMO, for syscall handlers (resize, map,
// unmap) that need it directly rather than through the Reader/Writer
// vtable.
func (o *vmoObject) Unwrap() *VMO { return o.v }

// UnwrapObject recovers the *VMO behind a kobject.Object created by
// (*VMO).AsObject, or nil if obj isn't a VMO object.
func UnwrapObject(obj *kobject.Object) *VMO {
	vo, ok := obj.Impl.(*vmoObject)
	if !ok {
		return nil
	}
	return vo.v
}

func (o *vmoObject) GetInfo(topic int, buf []byte) (int, kerr.Err) {
	if len(buf) < 8 {
		return 0, kerr.ETRUNC
	}
	sz := o.v.Size()
	for i := 0; i < 8; i++ {
		buf[i] = byte(sz >> (8 * i))
	}
	return 8, kerr.OK
}

// HostAddressSpace is the host-memory stand-in for a process address
// space's mapped-region set. A real
// bring-up layer would replace this with one that edits actual page
// tables; everything above this type only depends on the install/
// invalidate contract.
type HostAddressSpace struct {
	mu       sync.Mutex
	regions  []*region
	nextBase uintptr
}

// region records one mapped range. It carries no page pointers of its
// own: vmo+offset identify the backing range, and every access indexes
// through vmo.pages under vmo's own lock, so the mapping and the VMO
// never disagree about which pages have been allocated.
type region struct {
	vaddr  uintptr
	length int64
	prot   Prot
	vmo    *VMO
	offset int64
}

// defaultBase keeps mappings starting well above the null page.
const defaultBase = 0x10000

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *HostAddressSpace {
	return &HostAddressSpace{nextBase: defaultBase}
}

func (as *HostAddressSpace) install(hint uintptr, prot Prot, v *VMO, offset, length int64) (uintptr, kerr.Err) {
	as.mu.Lock()
	defer as.mu.Unlock()

	vaddr := hint
	if vaddr != 0 {
		if as.overlapsLocked(vaddr, length) {
			return 0, kerr.EINVAL
		}
	} else {
		vaddr = as.findFreeLocked(length)
	}

	as.regions = append(as.regions, &region{vaddr: vaddr, length: length, prot: prot, vmo: v, offset: offset})
	as.sortLocked()
	return vaddr, kerr.OK
}

func (as *HostAddressSpace) overlapsLocked(vaddr uintptr, length int64) bool {
	end := vaddr + uintptr(length)
	for _, r := range as.regions {
		rend := r.vaddr + uintptr(r.length)
		if vaddr < rend && r.vaddr < end {
			return true
		}
	}
	return false
}

func (as *HostAddressSpace) findFreeLocked(length int64) uintptr {
	as.sortLocked()
	candidate := as.nextBase
	for _, r := range as.regions {
		rend := r.vaddr + uintptr(r.length)
		if candidate+uintptr(length) <= r.vaddr {
			break
		}
		if candidate < rend {
			candidate = rend
		}
	}
	as.nextBase = candidate + uintptr(length)
	return candidate
}

func (as *HostAddressSpace) sortLocked() {
	sort.Slice(as.regions, func(i, j int) bool { return as.regions[i].vaddr < as.regions[j].vaddr })
}

func (as *HostAddressSpace) invalidate(vaddr uintptr, length int64) kerr.Err {
	as.mu.Lock()
	defer as.mu.Unlock()
	end := vaddr + uintptr(length)
	kept := as.regions[:0]
	for _, r := range as.regions {
		rend := r.vaddr + uintptr(r.length)
		switch {
		case end <= r.vaddr || vaddr >= rend:
			kept = append(kept, r)
		case vaddr <= r.vaddr && end >= rend:
			// fully covered: drop.
		default:
			// partial overlap: the simulated address space only tracks
			// whole regions per mapping call, so a partial invalidate
			// drops the whole region — a real MMU would split the PTEs
			// instead. This matches VMO resize, which always invalidates
			// from the new size to the old one (a suffix of the region).
		}
	}
	as.regions = kept
	return kerr.OK
}

// Read/Write let syscall.UserCopyIn/UserCopyOut fault-trap a user-memory access: they
// resolve vaddr against the currently installed mappings and fail with
// EINVAL if nothing is mapped there, so a sibling thread concurrently
// unmapping the range is observed safely instead of touching freed pages.
// Both delegate to the backing VMO's own Read/Write rather than keeping a
// second, separately-allocated page view, so a page lazily allocated
// through a mapping and one allocated through VMO.Write directly are
// always the same page.
func (as *HostAddressSpace) Read(vaddr uintptr, buf []byte) kerr.Err {
	as.mu.Lock()
	r, ok := as.resolveLocked(vaddr, int64(len(buf)))
	as.mu.Unlock()
	if !ok {
		return kerr.EINVAL
	}
	_, err := r.vmo.Read(buf, r.offset+int64(vaddr-r.vaddr))
	return err
}

func (as *HostAddressSpace) Write(vaddr uintptr, buf []byte) kerr.Err {
	as.mu.Lock()
	r, ok := as.resolveLocked(vaddr, int64(len(buf)))
	as.mu.Unlock()
	if !ok {
		return kerr.EINVAL
	}
	if r.prot&ProtWrite == 0 {
		return kerr.EPERM
	}
	_, err := r.vmo.Write(buf, r.offset+int64(vaddr-r.vaddr))
	return err
}

func (as *HostAddressSpace) resolveLocked(vaddr uintptr, length int64) (*region, bool) {
	for _, r := range as.regions {
		if vaddr >= r.vaddr && vaddr+uintptr(length) <= r.vaddr+uintptr(r.length) {
			return r, true
		}
	}
	return nil, false
}
