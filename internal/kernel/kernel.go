// Package kernel wires together the namespace, scheduler and syscall
// server into one running instance, and performs per-CPU bring-up:
// populating the well-known namespace entries every process
// expects to find (console, null device, timer, stats, log) and bringing
// every simulated CPU's scheduling loop up before accepting work.
//
// There's no retrieved bring-up file to follow here, so the structure is
// grounded on common startup idioms instead: golang.org/x/sync/errgroup for
// bringing up a fixed, known-size set of workers and failing fast if any
// one of them can't start, github.com/sirupsen/logrus for structured
// startup logging, github.com/google/uuid for a boot/session id that
// correlates log lines and metrics across one run, and
// github.com/pkg/errors for wrapping an unrecoverable bring-up failure
// with a stack trace before halting.
package kernel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"microkern/internal/kerr"
	"microkern/internal/kobject"
	"microkern/internal/namespace"
	"microkern/internal/proc"
	"microkern/internal/syscall"
)

// Config selects how many simulated CPUs to bring up, how long a
// scheduling quantum lasts, and how large a process's handle table is
// allowed to grow.
type Config struct {
	CPUs    int
	Quantum time.Duration
	Log     *logrus.Logger

	// HandleTableCapacity is the per-process handle-table ceiling; 0
	// keeps khandle's own default.
	HandleTableCapacity int
}

// DefaultConfig returns a small, single-CPU configuration suitable for
// tests.
func DefaultConfig() Config {
	return Config{CPUs: 1, Quantum: 10 * time.Millisecond}
}

// Kernel is one running instance: a namespace, a scheduler and the
// syscall server bound to both.
type Kernel struct {
	BootID string
	NS     *namespace.Namespace
	Sched  *proc.Scheduler
	Server *syscall.Server

	log *logrus.Entry
}

// Boot brings up cfg.CPUs simulated CPUs in parallel and populates the
// well-known namespace entries, failing fast (and wrapping the error
// with a stack trace) if any CPU fails to start.
func Boot(ctx context.Context, cfg Config) (*Kernel, error) {
	if cfg.CPUs < 1 {
		cfg.CPUs = 1
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = 10 * time.Millisecond
	}
	if cfg.HandleTableCapacity > 0 {
		proc.MaxHandlesPerProcess = cfg.HandleTableCapacity
	}
	base := cfg.Log
	if base == nil {
		base = logrus.New()
	}
	bootID := uuid.New().String()
	log := base.WithField("boot_id", bootID)

	ns := namespace.New()
	sched := proc.NewScheduler(cfg.CPUs, cfg.Quantum, log)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.CPUs; i++ {
		id := i
		g.Go(func() error {
			return bringUpCPU(gctx, id, log)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "kernel: CPU bring-up failed")
	}

	srv := syscall.NewServer(ns, sched)
	k := &Kernel{BootID: bootID, NS: ns, Sched: sched, Server: srv, log: log}
	if err := k.populateNamespace(); err != nil {
		return nil, errors.Wrap(err, "kernel: namespace population failed")
	}

	sched.Run(ctx)
	log.WithField("cpus", cfg.CPUs).Info("kernel boot complete")
	return k, nil
}

// bringUpCPU performs whatever one-time per-CPU initialization is
// needed before the scheduler may place threads on it. Real hardware
// bring-up (AP trampoline, LAPIC enable) is out of scope; this
// models it as a no-op that still participates in the errgroup so a
// future bring-up step (e.g. per-CPU page table setup) has a natural
// home and a natural failure path.
func bringUpCPU(ctx context.Context, id int, log *logrus.Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	log.WithField("cpu", id).Debug("cpu online")
	return nil
}

// Shutdown stops the scheduler's timer goroutine.
func (k *Kernel) Shutdown() {
	k.Sched.Stop()
	k.log.Info("kernel shutdown")
}

func (k *Kernel) populateNamespace() error {
	logObj := kobject.Create(kobject.KindDevice, "log", &logDevice{log: k.log})
	if err := k.NS.Register("/kernel/log", logObj); err != kerr.OK {
		return errors.Errorf("registering /kernel/log: %s", err)
	}

	timerObj := kobject.Create(kobject.KindDevice, "timer", &timerDevice{boot: time.Now()})
	if err := k.NS.Register("/kernel/timer", timerObj); err != kerr.OK {
		return errors.Errorf("registering /kernel/timer: %s", err)
	}

	statsObj := kobject.Create(kobject.KindDevice, "stats", &statsDevice{sched: k.Sched})
	if err := k.NS.Register("/kernel/stats", statsObj); err != kerr.OK {
		return errors.Errorf("registering /kernel/stats: %s", err)
	}

	nullObj := kobject.Create(kobject.KindDevice, "null", &nullDevice{})
	if err := k.NS.Register("/devices/null", nullObj); err != kerr.OK {
		return errors.Errorf("registering /devices/null: %s", err)
	}

	consoleObj := kobject.Create(kobject.KindDevice, "console", &consoleDevice{log: k.log})
	if err := k.NS.Register("/devices/console", consoleObj); err != kerr.OK {
		return errors.Errorf("registering /devices/console: %s", err)
	}

	// Mount /devices itself as a virtual directory, so a caller holding
	// only a handle to "/devices" can sub-lookup "null"/"console" through
	// that handle's own Lookup vtable slot instead of knowing the full
	// global path up front.
	devicesDir := namespace.CreateDir(k.NS, "/devices/")
	if err := k.NS.Register("/devices", devicesDir); err != kerr.OK {
		return errors.Errorf("registering /devices: %s", err)
	}
	return nil
}
