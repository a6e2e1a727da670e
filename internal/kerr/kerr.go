// Package kerr defines the negative-integer error taxonomy returned across
// the syscall boundary. Every object operation and syscall
// handler returns an Err, never a bare Go error, so the value is directly
// usable directly as a syscall's signed return register value.
package kerr

import "fmt"

// Err is a kernel error code. Zero means success; negative values are the
// well-defined error kinds enumerated below. Err implements error so it
// composes with the rest of Go's error handling where convenient, but
// callers on the hot path should compare against the constants directly.
type Err int

const (
	OK Err = 0

	EINVAL    Err = -1 // invalid argument
	ENOENT    Err = -2 // no such object
	EPERM     Err = -3 // rights denied
	ENOSYS    Err = -4 // not supported
	ENONAME   Err = -5 // no such name
	ESRCH     Err = -6 // no such process
	ENOMEM    Err = -7 // no memory
	EAGAIN    Err = -8 // would block
	EOF       Err = -9  // end of stream
	ETRUNC    Err = -10 // truncated
	ETIMEDOUT Err = -11 // timed out
	ECLOSED   Err = -12 // already closed
	EEXIST    Err = -13 // name exists
)

var names = map[Err]string{
	OK:        "ok",
	EINVAL:    "invalid argument",
	ENOENT:    "no such object",
	EPERM:     "rights denied",
	ENOSYS:    "not supported",
	ENONAME:   "no such name",
	ESRCH:     "no such process",
	ENOMEM:    "no memory",
	EAGAIN:    "would block",
	EOF:       "end of stream",
	ETRUNC:    "truncated",
	ETIMEDOUT: "timed out",
	ECLOSED:   "already closed",
	EEXIST:    "name exists",
}

// Error satisfies the error interface so Err can be returned from
// functions that also want to participate in errors.Is/As chains.
func (e Err) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return fmt.Sprintf("kerr %d", int(e))
}

// Ok reports whether e represents success.
func (e Err) Ok() bool { return e == OK }
