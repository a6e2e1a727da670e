package main

import (
	"github.com/sirupsen/logrus"

	"microkern/internal/ipc"
	"microkern/internal/kernel"
	"microkern/internal/khandle"
	"microkern/internal/kerr"
	"microkern/internal/proc"
	"microkern/internal/vmo"
)

// runDemo exercises a few scenarios also covered as tests: a channel
// send/receive of a byte message (no handle transfer), a VMO resize, a
// duplicate with downgraded rights, and a namespace registration
// collision — driven directly
// against the kernel's packages rather than through the raw syscall ABI,
// since there is no guest ELF loader to drive it through a real
// boundary.
func runDemo(k *kernel.Kernel) {
	log := logrus.NewEntry(logrus.StandardLogger())

	p := proc.NewProcess(1)
	k.Sched.Spawn(p)

	v, err := vmo.Create(8192, vmo.Flags{})
	if err != kerr.OK {
		log.WithField("err", err).Error("vmo create failed")
		return
	}
	obj := v.AsObject("demo-vmo")
	h, insErr := p.Handles.Insert(obj, khandle.READ|khandle.WRITE|khandle.DUPLICATE)
	obj.Deref()
	if insErr != kerr.OK {
		log.WithField("err", insErr).Error("handle insert failed")
		return
	}
	log.WithField("handle", h).Info("created vmo")

	dup, dErr := p.Handles.Duplicate(h, khandle.READ)
	log.WithFields(logrus.Fields{"dup": dup, "err": dErr}).Info("duplicated with downgraded rights")

	c1, c2 := ipc.NewPair()
	c1obj := c1.AsObject("demo-chan-1")
	c2obj := c2.AsObject("demo-chan-2")
	hc1, hc1Err := p.Handles.Insert(c1obj, khandle.READ|khandle.WRITE|khandle.TRANSFER)
	hc2, hc2Err := p.Handles.Insert(c2obj, khandle.READ|khandle.WRITE|khandle.TRANSFER)
	c1obj.Deref()
	c2obj.Deref()
	if hc1Err != kerr.OK || hc2Err != kerr.OK {
		log.WithFields(logrus.Fields{"err1": hc1Err, "err2": hc2Err}).Error("channel handle insert failed")
		return
	}
	log.WithFields(logrus.Fields{"chan1": hc1, "chan2": hc2}).Info("created channel pair")

	if sendErr := c1.Send([]byte("hello"), nil); sendErr != kerr.OK {
		log.WithField("err", sendErr).Error("send failed")
	}
	buf := make([]byte, 16)
	n, _, recvErr := c2.TryRecv(buf)
	log.WithFields(logrus.Fields{"n": n, "data": string(buf[:n]), "err": recvErr}).Info("received message")

	if resizeErr := v.Resize(4096); resizeErr != kerr.OK {
		log.WithField("err", resizeErr).Error("resize failed")
	}
	log.WithField("size", v.Size()).Info("resized vmo")

	nsErr := k.NS.Register("/demo/vmo", obj)
	log.WithField("err", nsErr).Info("namespace registration")
	collideErr := k.NS.Register("/demo/vmo", obj)
	log.WithField("err", collideErr).Info("namespace registration collision (expected EEXIST)")
}
