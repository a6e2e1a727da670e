package syscall

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/kobject"
	"microkern/internal/namespace"
	"microkern/internal/proc"
)

// invalidHandle is khandle.Invalid held in a variable: converting the
// negative constant to uintptr directly does not compile, while a
// variable converts by sign extension, as a raw syscall argument would.
var invalidHandle = khandle.Invalid

func newTestServer(t *testing.T) (*Server, *proc.Process, *proc.Thread) {
	t.Helper()
	ns := namespace.New()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	sched := proc.NewScheduler(1, time.Hour, logrus.NewEntry(log))
	srv := NewServer(ns, sched)
	p := proc.NewProcess(1)
	th := sched.Spawn(p)
	return srv, p, th
}

func TestVmoCreateReadWriteRoundTrip(t *testing.T) {
	srv, p, th := newTestServer(t)

	hRaw, err := srv.Dispatch(p, th, SysVmoCreate, Args{A0: 4096})
	if err != kerr.OK {
		t.Fatalf("SysVmoCreate = %v", err)
	}

	payload := []byte("syscall round trip")
	vaddr := uintptr(0x20000)

	if _, mapErr := srv.Dispatch(p, th, SysVmoMap, Args{A0: hRaw, A1: vaddr, A2: 0, A3: 4096}); mapErr != kerr.OK {
		t.Fatalf("SysVmoMap = %v", mapErr)
	}
	if writeErr := p.AddrSpace.Write(vaddr, payload); writeErr != kerr.OK {
		t.Fatalf("AddrSpace.Write = %v", writeErr)
	}

	n, writeErr := srv.Dispatch(p, th, SysVmoWrite, Args{A0: hRaw, A1: 0, A2: vaddr, A3: uintptr(len(payload))})
	if writeErr != kerr.OK || int(n) != len(payload) {
		t.Fatalf("SysVmoWrite = (%d, %v)", n, writeErr)
	}

	readBuf := uintptr(0x30000)
	if _, mapErr := srv.Dispatch(p, th, SysVmoMap, Args{A0: hRaw, A1: readBuf, A2: 0, A3: 4096}); mapErr != kerr.OK {
		t.Fatalf("second SysVmoMap = %v", mapErr)
	}
	n, readErr := srv.Dispatch(p, th, SysVmoRead, Args{A0: hRaw, A1: 0, A2: readBuf, A3: uintptr(len(payload))})
	if readErr != kerr.OK || int(n) != len(payload) {
		t.Fatalf("SysVmoRead = (%d, %v)", n, readErr)
	}
	got := make([]byte, len(payload))
	p.AddrSpace.Read(readBuf, got)
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestHandleDuplicateCannotElevateThroughSyscall(t *testing.T) {
	srv, p, th := newTestServer(t)
	hRaw, _ := srv.Dispatch(p, th, SysVmoCreate, Args{A0: 4096})

	if _, err := srv.Dispatch(p, th, SysHandleDup, Args{A0: hRaw, A1: uintptr(khandle.READ | khandle.WRITE | khandle.DUPLICATE | khandle.EXECUTE)}); err != kerr.EINVAL {
		t.Fatalf("dup with elevated rights = %v, want EINVAL", err)
	}
}

func TestNamespaceRegisterCollisionViaSyscall(t *testing.T) {
	srv, p, th := newTestServer(t)
	hRaw, _ := srv.Dispatch(p, th, SysVmoCreate, Args{A0: 4096})

	path := "/demo/object"
	vaddr := uintptr(0x40000)
	if _, mapErr := srv.Dispatch(p, th, SysVmoMap, Args{A0: hRaw, A1: vaddr, A2: 0, A3: 4096}); mapErr != kerr.OK {
		t.Fatalf("map path buffer source: %v", mapErr)
	}
	if err := p.AddrSpace.Write(vaddr, []byte(path)); err != kerr.OK {
		t.Fatalf("seed path bytes: %v", err)
	}

	if _, err := srv.Dispatch(p, th, SysNsRegister, Args{A0: hRaw, A1: vaddr, A2: uintptr(len(path))}); err != kerr.OK {
		t.Fatalf("first SysNsRegister = %v", err)
	}
	if _, err := srv.Dispatch(p, th, SysNsRegister, Args{A0: hRaw, A1: vaddr, A2: uintptr(len(path))}); err != kerr.EEXIST {
		t.Fatalf("second SysNsRegister = %v, want EEXIST", err)
	}
}

func TestNamespaceSubLookupThroughDirectoryHandle(t *testing.T) {
	srv, p, th := newTestServer(t)

	target := kobject.Create(kobject.KindFile, "leaf", struct{}{})
	if err := srv.NS.Register("/mnt/leaf", target); err != kerr.OK {
		t.Fatalf("Register() = %v", err)
	}
	dirObj := namespace.CreateDir(srv.NS, "/mnt/")
	if err := srv.NS.Register("/mnt", dirObj); err != kerr.OK {
		t.Fatalf("Register(dir) = %v", err)
	}

	dirPath := "/mnt"
	dirVaddr := uintptr(0x80000)
	bufRaw, _ := srv.Dispatch(p, th, SysVmoCreate, Args{A0: 8192})
	if _, mapErr := srv.Dispatch(p, th, SysVmoMap, Args{A0: bufRaw, A1: dirVaddr, A2: 0, A3: 8192}); mapErr != kerr.OK {
		t.Fatalf("map path buffers: %v", mapErr)
	}
	if err := p.AddrSpace.Write(dirVaddr, []byte(dirPath)); err != kerr.OK {
		t.Fatalf("seed dir path: %v", err)
	}
	dirRaw, err := srv.Dispatch(p, th, SysNsLookup, Args{A0: dirVaddr, A1: uintptr(len(dirPath)), A2: uintptr(khandle.GET_INFO), A3: uintptr(invalidHandle)})
	if err != kerr.OK {
		t.Fatalf("SysNsLookup(dir) = %v", err)
	}

	leafPath := "leaf"
	leafVaddr := uintptr(0x81000)
	if err := p.AddrSpace.Write(leafVaddr, []byte(leafPath)); err != kerr.OK {
		t.Fatalf("seed leaf path: %v", err)
	}
	leafRaw, err := srv.Dispatch(p, th, SysNsLookup, Args{A0: leafVaddr, A1: uintptr(len(leafPath)), A2: uintptr(khandle.GET_INFO), A3: dirRaw})
	if err != kerr.OK {
		t.Fatalf("SysNsLookup(sub-lookup) = %v", err)
	}
	obj, lookupErr := lookupHandle(p, leafRaw, khandle.GET_INFO)
	if lookupErr != kerr.OK || obj != target {
		t.Fatalf("sub-lookup resolved to (%v, %v), want %v", obj, lookupErr, target)
	}
}

func TestChannelSendRecvViaSyscall(t *testing.T) {
	srv, p, th := newTestServer(t)

	pairRaw, err := srv.Dispatch(p, th, SysChannelCreate, Args{})
	if err != kerr.OK {
		t.Fatalf("SysChannelCreate = %v", err)
	}
	h1 := khandle.Handle(int32(uint32(pairRaw)))
	h2 := khandle.Handle(int32(uint32(pairRaw >> 32)))

	msg := []byte("over the wire")
	srcVaddr := uintptr(0x60000)
	vmoRaw, _ := srv.Dispatch(p, th, SysVmoCreate, Args{A0: 4096})
	srv.Dispatch(p, th, SysVmoMap, Args{A0: vmoRaw, A1: srcVaddr, A2: 0, A3: 4096})
	p.AddrSpace.Write(srcVaddr, msg)

	if _, sendErr := srv.Dispatch(p, th, SysChannelSend, Args{A0: uintptr(h1), A1: srcVaddr, A2: uintptr(len(msg)), A3: uintptr(invalidHandle)}); sendErr != kerr.OK {
		t.Fatalf("SysChannelSend = %v", sendErr)
	}

	dstVaddr := uintptr(0x70000)
	srv.Dispatch(p, th, SysVmoMap, Args{A0: vmoRaw, A1: dstVaddr, A2: 0, A3: 4096})
	res, recvErr := srv.Dispatch(p, th, SysChannelTryRecv, Args{A0: uintptr(h2), A1: dstVaddr, A2: uintptr(len(msg))})
	if recvErr != kerr.OK {
		t.Fatalf("SysChannelTryRecv = %v", recvErr)
	}
	n := uint32(res)
	got := make([]byte, n)
	p.AddrSpace.Read(dstVaddr, got)
	if string(got) != string(msg) {
		t.Fatalf("received %q, want %q", got, msg)
	}
}
