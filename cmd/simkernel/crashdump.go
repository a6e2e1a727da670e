package main

import (
	"runtime"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/arch/x86/x86asm"
)

// dumpCrash logs a goroutine stack dump and, best-effort, a disassembly
// of the 64 bytes starting at the panicking function's entry point —
// the kind of thing a real kernel's panic handler would print from the
// faulting instruction pointer. There's no real fault here (no MMU, no
// trap frame), so this reads the panicking function's
// own machine code out of the running binary instead, which is the
// closest legitimate analogue available from user space.
func dumpCrash(r interface{}) {
	log := logrus.WithField("component", "crashdump")
	log.Errorf("panic: %v", r)

	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, false)
	log.Errorf("goroutine stack:\n%s", buf[:n])

	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}
	entry := fn.Entry()
	const window = 64
	code := unsafe.Slice((*byte)(unsafe.Pointer(entry)), window)

	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil || inst.Len == 0 {
			break
		}
		addr := entry + uintptr(offset)
		log.Debugf("0x%x: %s", addr, x86asm.GNUSyntax(inst, uint64(addr), nil))
		offset += inst.Len
	}
}
