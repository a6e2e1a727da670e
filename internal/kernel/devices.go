package kernel

import (
	"time"

	"github.com/sirupsen/logrus"

	"microkern/internal/kerr"
	"microkern/internal/proc"
)

// logDevice forwards writes to the structured logger at info level,
// the simulated stand-in for a kernel log ring buffer.
type logDevice struct {
	log *logrus.Entry
}

func (d *logDevice) Write(buf []byte, _ int64) (int, kerr.Err) {
	d.log.Info(string(buf))
	return len(buf), kerr.OK
}

// nullDevice discards writes and reads as EOF, matching /dev/null
// semantics.
type nullDevice struct{}

func (d *nullDevice) Write(buf []byte, _ int64) (int, kerr.Err) {
	return len(buf), kerr.OK
}

func (d *nullDevice) Read(buf []byte, _ int64) (int, kerr.Err) {
	return 0, kerr.EOF
}

// consoleDevice writes to the structured logger at a console-visible
// level; reads are unsupported (ENOSYS, the vtable's "any op may be
// absent" rule).
type consoleDevice struct {
	log *logrus.Entry
}

func (d *consoleDevice) Write(buf []byte, _ int64) (int, kerr.Err) {
	d.log.Print(string(buf))
	return len(buf), kerr.OK
}

// timerDevice's GetInfo returns nanoseconds since boot as an 8-byte
// little-endian value, a namespace-visible since-boot clock. sysGetTicks
// does not read it; it keeps its own boot timestamp.
type timerDevice struct {
	boot time.Time
}

func (d *timerDevice) GetInfo(_ int, buf []byte) (int, kerr.Err) {
	if len(buf) < 8 {
		return 0, kerr.ETRUNC
	}
	ns := time.Since(d.boot).Nanoseconds()
	for i := 0; i < 8; i++ {
		buf[i] = byte(ns >> (8 * i))
	}
	return 8, kerr.OK
}

// statsDevice's GetInfo reports the number of CPUs under management, a
// minimal namespace-visible scheduler health check (the supplemented
// debug topics on object_get_info cover the rest).
type statsDevice struct {
	sched *proc.Scheduler
}

func (d *statsDevice) GetInfo(_ int, buf []byte) (int, kerr.Err) {
	if len(buf) < 1 {
		return 0, kerr.ETRUNC
	}
	buf[0] = byte(d.sched.CPUCount())
	return 1, kerr.OK
}
