package syscall

import (
	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/kobject"
	"microkern/internal/proc"
)

// sysNsRegister publishes the object named by handle a.A0 at the path
// copied in from user memory at a.A1/a.A2.
func sysNsRegister(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, 0)
	if err != kerr.OK {
		return 0, err
	}
	pathBytes, cpErr := UserCopyIn(p, a.A1, int(a.A2))
	if cpErr != kerr.OK {
		return 0, cpErr
	}
	return 0, srv.NS.Register(string(pathBytes), obj)
}

// sysNsLookup resolves a path copied in from user memory, installing a
// new handle with the requested rights on success. If a.A3 names a
// handle (rather than khandle.Invalid), the path is resolved via that
// handle's own Lookup vtable slot instead of against the global
// namespace root — the sub-lookup path a namespace directory object
// (namespace.CreateDir) exists to serve, letting a caller that already
// holds a directory handle walk one path component at a time.
func sysNsLookup(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	pathBytes, cpErr := UserCopyIn(p, a.A0, int(a.A1))
	if cpErr != kerr.OK {
		return 0, cpErr
	}

	var obj *kobject.Object
	var err kerr.Err
	if parentHandle := khandle.Handle(int32(a.A3)); parentHandle != khandle.Invalid {
		var parent *kobject.Object
		parent, err = lookupHandle(p, a.A3, 0)
		if err != kerr.OK {
			return 0, err
		}
		obj, err = parent.Lookup(string(pathBytes))
	} else {
		obj, err = srv.NS.Lookup(string(pathBytes))
	}
	if err != kerr.OK {
		return 0, err
	}
	h, insErr := p.Handles.Insert(obj, khandle.Rights(a.A2))
	// Insert took its own reference (on success); release the one Lookup
	// returned either way.
	obj.Deref()
	if insErr != kerr.OK {
		return 0, insErr
	}
	return uintptr(h), kerr.OK
}
