package syscall

import (
	"time"

	"microkern/internal/kerr"
	"microkern/internal/proc"
)

var bootTime = time.Now()

// sysSpawn creates a new process with its own handle table and address
// space, then inherits the caller's handle table into it: every handle
// not marked transient (sys_handle_set_transient) carries over with a
// fresh reference, and transient ones are dropped, the
// close-on-spawn behavior a CLOEXEC bit gives a real process image.
// Returns the new process's id packed in the low 32 bits and the new
// thread's id in the high 32.
func sysSpawn(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	child := proc.NewProcess(a.A0)
	p.Handles.Inherit(child.Handles)
	nt := srv.Sched.Spawn(child)
	return uintptr(uint32(child.ID)) | uintptr(uint32(nt.ID))<<32, kerr.OK
}

// sysExit terminates the calling thread; once every thread in the
// process has exited, the process's exit code is recorded as a.A0.
func sysExit(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	srv.Sched.Exit(t, int(a.A0))
	return 0, kerr.OK
}

func sysYield(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	srv.Sched.Yield(t)
	return 0, kerr.OK
}

// sysGetTicks returns nanoseconds of monotonic time since boot, a
// coarse clock source for callers that just need elapsed-time ordering.
func sysGetTicks(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return uintptr(time.Since(bootTime).Nanoseconds()), kerr.OK
}

func sysGetpid(srv *Server, p *proc.Process, t *proc.Thread, a Args) (uintptr, kerr.Err) {
	return uintptr(p.ID), kerr.OK
}
