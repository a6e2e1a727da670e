// Package ipc implements bidirectional, FIFO, handle-carrying channels:
// two endpoints, each with its own inbound queue, where a
// blocking Recv parks on a waitq.Queue and handle transfer moves
// capabilities out of the sender's table into the message instead of
// copying them.
//
// Modeled on a byte ring buffer (Cp_to/Cp_from-style, as used by pipes)
// for the queue-of-messages shape, and on a killed-thread wakeup
// discipline for the blocking-receive path. Unlike
// circbuf, a channel's unit of transfer is a whole message (bytes plus a
// handle list), never a partial one — a receive buffer too small for the
// message fails with ETRUNC and leaves the message queued.
//
// ipc depends only on waitq and khandle/kobject, not on the scheduler or
// process packages, keeping channels buildable before scheduler/threads
// exist and avoiding an ipc<->proc import cycle.
package ipc

import (
	"context"
	"sync"
	"time"

	"microkern/internal/kerr"
	"microkern/internal/khandle"
	"microkern/internal/kobject"
	"microkern/internal/waitq"
)

// TransferredHandle is one capability carried by a message: the object
// itself (detached, not merely referenced) plus the rights it carried at
// send time, unchanged across the transfer.
type TransferredHandle struct {
	Obj    *kobject.Object
	Rights khandle.Rights
}

// Message is one queued unit: a byte payload and zero or more transferred
// handles.
type Message struct {
	Data    []byte
	Handles []TransferredHandle
}

// pipe is the shared, one-directional queue between two endpoints. Each
// Channel owns the pipe it reads from; the peer owns the pipe it writes
// to.
type pipe struct {
	mu     sync.Mutex
	queue  []Message
	waitq  waitq.Queue
	closed bool
}

// Channel is one endpoint of a bidirectional pipe pair.
type Channel struct {
	recv *pipe
	send *pipe
	mu   sync.Mutex
	// peer is the other endpoint of the pair. Close does not use it: it
	// reaches the peer's blocked receivers through the shared send pipe.
	peer *Channel
}

// NewPair creates two connected endpoints; messages sent on one arrive on
// the other.
func NewPair() (*Channel, *Channel) {
	a := &pipe{}
	b := &pipe{}
	c1 := &Channel{recv: a, send: b}
	c2 := &Channel{recv: b, send: a}
	c1.peer = c2
	c2.peer = c1
	return c1, c2
}

// Send enqueues data and handles on the peer's inbound queue and wakes
// one blocked receiver, if any. Handles are expected to already be
// detached from the sender's table.
func (c *Channel) Send(data []byte, handles []TransferredHandle) kerr.Err {
	c.send.mu.Lock()
	if c.send.closed {
		c.send.mu.Unlock()
		return kerr.ECLOSED
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.send.queue = append(c.send.queue, Message{Data: cp, Handles: handles})
	c.send.mu.Unlock()
	c.send.waitq.Wake(1)
	return kerr.OK
}

// Recv blocks until a message is available, the channel is closed
// (returns ECLOSED once drained), or ctx is done. If buf is too small for
// the queued message's data, Recv fails with ETRUNC and the message stays
// queued.
func (c *Channel) Recv(ctx context.Context, buf []byte, deadline time.Time) (int, []TransferredHandle, kerr.Err) {
	for {
		c.recv.mu.Lock()
		if len(c.recv.queue) > 0 {
			msg := c.recv.queue[0]
			if len(msg.Data) > len(buf) {
				c.recv.mu.Unlock()
				return 0, nil, kerr.ETRUNC
			}
			c.recv.queue = c.recv.queue[1:]
			c.recv.mu.Unlock()
			n := copy(buf, msg.Data)
			return n, msg.Handles, kerr.OK
		}
		if c.recv.closed {
			c.recv.mu.Unlock()
			return 0, nil, kerr.ECLOSED
		}
		w := c.recv.waitq.Enqueue()
		c.recv.mu.Unlock()

		switch w.Wait(ctx, deadline) {
		case waitq.Canceled:
			return 0, nil, kerr.EAGAIN
		case waitq.TimedOut:
			return 0, nil, kerr.ETIMEDOUT
		}
		// Woken: loop and re-check the queue under lock.
	}
}

// TryRecv is Recv without blocking: EAGAIN if nothing is queued.
func (c *Channel) TryRecv(buf []byte) (int, []TransferredHandle, kerr.Err) {
	c.recv.mu.Lock()
	defer c.recv.mu.Unlock()
	if len(c.recv.queue) > 0 {
		msg := c.recv.queue[0]
		if len(msg.Data) > len(buf) {
			return 0, nil, kerr.ETRUNC
		}
		c.recv.queue = c.recv.queue[1:]
		n := copy(buf, msg.Data)
		return n, msg.Handles, kerr.OK
	}
	if c.recv.closed {
		return 0, nil, kerr.ECLOSED
	}
	return 0, nil, kerr.EAGAIN
}

// Close marks both directions of this endpoint closed: the pipe it sends
// on (so the peer's Recv sees end-of-stream once drained, and this
// endpoint's own further Sends fail) and the pipe it receives on (so the
// peer's further Sends fail immediately, and this endpoint's own blocked
// Recv wakes with ECLOSED). Already-queued messages on either pipe remain
// readable until drained.
func (c *Channel) Close() kerr.Err {
	c.send.mu.Lock()
	sendWasOpen := !c.send.closed
	c.send.closed = true
	c.send.mu.Unlock()

	c.recv.mu.Lock()
	recvWasOpen := !c.recv.closed
	c.recv.closed = true
	c.recv.mu.Unlock()

	if sendWasOpen {
		c.send.waitq.WakeAll()
	}
	if recvWasOpen {
		c.recv.waitq.WakeAll()
	}
	return kerr.OK
}

// AsObject wraps c as a kobject.Object of KindChannel implementing
// Reader, Writer and Closer for the syscall dispatch layer; Recv/Send
// with handle lists are reached directly by the syscall handlers that
// need TransferredHandle, bypassing the plain Reader/Writer vtable.
func (c *Channel) AsObject(name string) *kobject.Object {
	return kobject.Create(kobject.KindChannel, name, &channelObject{c: c})
}

type channelObject struct{ c *Channel }

func (o *channelObject) Read(buf []byte, _ int64) (int, kerr.Err) {
	n, _, err := o.c.TryRecv(buf)
	return n, err
}

func (o *channelObject) Write(buf []byte, _ int64) (int, kerr.Err) {
	if err := o.c.Send(buf, nil); err != kerr.OK {
		return 0, err
	}
	return len(buf), kerr.OK
}

func (o *channelObject) Close() kerr.Err { return o.c.Close() }

// Unwrap recovers the underlying *Channel from a kobject.Object of
// KindChannel, for syscall handlers that need Recv/Send's handle-carrying
// form. Returns nil if obj isn't a channel object.
func Unwrap(obj *kobject.Object) *Channel {
	co, ok := obj.Impl.(*channelObject)
	if !ok {
		return nil
	}
	return co.c
}
