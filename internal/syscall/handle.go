package syscall

import (
	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/proc"
)

func sysHandleClose(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return 0, p.Handles.Close(khandle.Handle(int32(a.A0)))
}

func sysHandleDup(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	h, err := p.Handles.Duplicate(khandle.Handle(int32(a.A0)), khandle.Rights(a.A1))
	return uintptr(h), err
}

func sysHandleRights(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	r, err := p.Handles.Rights(khandle.Handle(int32(a.A0)))
	return uintptr(r), err
}

// sysHandleSetTransient marks a.A0 transient (a.A1 != 0) or durable
// (a.A1 == 0). A transient handle is dropped rather than inherited the
// next time this process spawns a child.
func sysHandleSetTransient(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return 0, p.Handles.SetTransient(khandle.Handle(int32(a.A0)), a.A1 != 0)
}

// sysHandleRead dispatches to the object's Reader vtable slot, copying
// the result out to user memory at a.A2.
func sysHandleRead(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.READ)
	if err != kerr.OK {
		return 0, err
	}
	length := int(a.A3)
	buf := make([]byte, length)
	n, err := obj.Read(buf, int64(a.A1))
	if err != kerr.OK {
		return 0, err
	}
	if cpErr := UserCopyOut(p, a.A2, buf[:n]); cpErr != kerr.OK {
		return 0, cpErr
	}
	return uintptr(n), kerr.OK
}

func sysHandleWrite(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.WRITE)
	if err != kerr.OK {
		return 0, err
	}
	length := int(a.A3)
	buf, cpErr := UserCopyIn(p, a.A2, length)
	if cpErr != kerr.OK {
		return 0, cpErr
	}
	n, err := obj.Write(buf, int64(a.A1))
	return uintptr(n), err
}

func sysHandleSeek(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, 0)
	if err != kerr.OK {
		return 0, err
	}
	off, err := obj.Seek(int64(a.A1), int(a.A2))
	return uintptr(off), err
}

func sysObjectGetInfo(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	topic := int(a.A1)
	switch topic {
	case TopicSched:
		return 0, objectGetInfoSched(srv, p, a)
	case TopicObjGraph:
		return 0, objectGetInfoObjGraph(srv, p, a)
	}
	obj, err := lookupHandle(p, a.A0, khandle.GET_INFO)
	if err != kerr.OK {
		return 0, err
	}
	length := int(a.A3)
	buf := make([]byte, length)
	n, err := obj.GetInfo(topic, buf)
	if err != kerr.OK {
		return 0, err
	}
	if cpErr := UserCopyOut(p, a.A2, buf[:n]); cpErr != kerr.OK {
		return 0, cpErr
	}
	return uintptr(n), kerr.OK
}

// objectGetInfoSched reports per-CPU run-queue depth as a debug
// introspection aid (supplemented debug topic, not in spec.md's original
// catalogue — see SPEC_FULL.md).
func objectGetInfoSched(srv *Server, p *proc.Process, a Args) kerr.Err {
	n := srv.Sched.CPUCount()
	buf := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		buf[i*4] = byte(i)
	}
	return UserCopyOut(p, a.A2, buf)
}

// objectGetInfoObjGraph reports the calling process's handle-table
// occupancy, a cheap proxy for the live object graph (supplemented
// debug topic).
func objectGetInfoObjGraph(srv *Server, p *proc.Process, a Args) kerr.Err {
	buf := []byte{byte(p.Handles.Occupied())}
	return UserCopyOut(p, a.A2, buf)
}
