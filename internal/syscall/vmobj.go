package syscall

import (
	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/kobject"
	"microkern/internal/proc"
	"microkern/internal/vmo"
)

func sysVmoCreate(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	v, err := vmo.Create(int64(a.A0), vmo.Flags{})
	if err != kerr.OK {
		return 0, err
	}
	obj := v.AsObject("vmo")
	h, insErr := p.Handles.Insert(obj, khandle.READ|khandle.WRITE|khandle.MAP|khandle.DUPLICATE)
	obj.Deref()
	if insErr != kerr.OK {
		return 0, insErr
	}
	return uintptr(h), kerr.OK
}

func sysVmoRead(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return sysHandleRead(srv, p, t, a)
}

func sysVmoWrite(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return sysHandleWrite(srv, p, t, a)
}

func sysVmoResize(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.WRITE)
	if err != kerr.OK {
		return 0, err
	}
	v := vmoFromObject(obj)
	if v == nil {
		return 0, kerr.EINVAL
	}
	return 0, v.Resize(int64(a.A1))
}

func sysVmoMap(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.MAP)
	if err != kerr.OK {
		return 0, err
	}
	v := vmoFromObject(obj)
	if v == nil {
		return 0, kerr.EINVAL
	}
	prot := vmo.ProtRead
	rights, rErr := p.Handles.Rights(khandle.Handle(int32(a.A0)))
	if rErr == kerr.OK && rights.Has(khandle.WRITE) {
		prot |= vmo.ProtWrite
	}
	if rErr == kerr.OK && rights.Has(khandle.EXECUTE) {
		prot |= vmo.ProtExec
	}
	vaddr, err := v.Map(p.AddrSpace, a.A1, int64(a.A2), int64(a.A3), prot)
	return vaddr, err
}

func sysVmoUnmap(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.MAP)
	if err != kerr.OK {
		return 0, err
	}
	v := vmoFromObject(obj)
	if v == nil {
		return 0, kerr.EINVAL
	}
	return 0, v.Unmap(p.AddrSpace, a.A1, int64(a.A2))
}

// vmoFromObject recovers the *vmo.VMO behind a kobject.Object created by
// vmo.Create.AsObject, for syscalls (resize/map/unmap) that need the
// type directly rather than through the Reader/Writer vtable.
func vmoFromObject(obj *kobject.Object) *vmo.VMO {
	return vmo.UnwrapObject(obj)
}
