package syscall

import (
	"context"
	"time"

	"microkern/internal/ipc"
	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/proc"
)

func sysChannelCreate(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	c1, c2 := ipc.NewPair()
	o1 := c1.AsObject("channel")
	o2 := c2.AsObject("channel")
	h1, err := p.Handles.Insert(o1, khandle.READ|khandle.WRITE|khandle.TRANSFER|khandle.DUPLICATE)
	if err != kerr.OK {
		o1.Deref()
		o2.Deref()
		return 0, err
	}
	h2, err := p.Handles.Insert(o2, khandle.READ|khandle.WRITE|khandle.TRANSFER|khandle.DUPLICATE)
	if err != kerr.OK {
		p.Handles.Close(h1)
		o2.Deref()
		return 0, err
	}
	o1.Deref()
	o2.Deref()
	// Two results packed into one register-width return: the caller
	// unpacks handle 1 from the low 32 bits, handle 2 from the high 32
	//.
	return uintptr(uint32(h1)) | uintptr(uint32(h2))<<32, kerr.OK
}

// sysChannelSend detaches the transferred handle (if any, a.A3 != -1)
// from the sender's table before enqueueing, so the reference moves
// rather than copies.
func sysChannelSend(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.WRITE)
	if err != kerr.OK {
		return 0, err
	}
	ch := ipc.Unwrap(obj)
	if ch == nil {
		return 0, kerr.EINVAL
	}
	data, cpErr := UserCopyIn(p, a.A1, int(a.A2))
	if cpErr != kerr.OK {
		return 0, cpErr
	}
	var handles []ipc.TransferredHandle
	if transferHandle := khandle.Handle(int32(a.A3)); transferHandle != khandle.Invalid {
		hObj, rights, dErr := p.Handles.Detach(transferHandle, khandle.TRANSFER)
		if dErr != kerr.OK {
			return 0, dErr
		}
		handles = append(handles, ipc.TransferredHandle{Obj: hObj, Rights: rights})
	}
	return 0, ch.Send(data, handles)
}

// sysChannelRecv blocks (parking the thread) until a message arrives,
// the peer closes, or the deadline encoded in a.A4 (nanoseconds since
// epoch, 0 meaning no deadline) passes.
func sysChannelRecv(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.READ)
	if err != kerr.OK {
		return 0, err
	}
	ch := ipc.Unwrap(obj)
	if ch == nil {
		return 0, kerr.EINVAL
	}
	var deadline time.Time
	if a.A4 != 0 {
		deadline = time.Unix(0, int64(a.A4))
	}
	buf := make([]byte, int(a.A2))
	// Mark the thread Blocked for scheduling/accounting purposes while
	// it waits on the channel's own waitq.
	srv.Sched.Block(t)
	n, handles, err := ch.Recv(context.Background(), buf, deadline)
	srv.Sched.Wake(t)
	if err != kerr.OK {
		return 0, err
	}
	if cpErr := UserCopyOut(p, a.A1, buf[:n]); cpErr != kerr.OK {
		return 0, cpErr
	}
	var outHandle khandle.Handle = khandle.Invalid
	if len(handles) > 0 {
		outHandle, err = p.Handles.Attach(handles[0].Obj, handles[0].Rights)
		if err != kerr.OK {
			handles[0].Obj.Deref()
			return 0, err
		}
	}
	return uintptr(n) | uintptr(uint32(outHandle))<<32, kerr.OK
}

func sysChannelTryRecv(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	obj, err := lookupHandle(p, a.A0, khandle.READ)
	if err != kerr.OK {
		return 0, err
	}
	ch := ipc.Unwrap(obj)
	if ch == nil {
		return 0, kerr.EINVAL
	}
	buf := make([]byte, int(a.A2))
	n, handles, err := ch.TryRecv(buf)
	if err != kerr.OK {
		return 0, err
	}
	if cpErr := UserCopyOut(p, a.A1, buf[:n]); cpErr != kerr.OK {
		return 0, cpErr
	}
	var outHandle khandle.Handle = khandle.Invalid
	if len(handles) > 0 {
		outHandle, err = p.Handles.Attach(handles[0].Obj, handles[0].Rights)
		if err != kerr.OK {
			handles[0].Obj.Deref()
			return 0, err
		}
	}
	return uintptr(n) | uintptr(uint32(outHandle))<<32, kerr.OK
}

func sysChannelClose(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return 0, p.Handles.Close(khandle.Handle(int32(a.A0)))
}
