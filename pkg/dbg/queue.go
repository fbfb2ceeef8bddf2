package dbg

import (
	"errors"
	"runtime"
	"time"
)

// idlePollInterval is the fixed sleep the debugger thread takes when it has
// no queued request and the last event poll came back empty (spec §4.1
// "sleeps briefly to avoid busy-spinning when idle").
const idlePollInterval = 10 * time.Millisecond

// ErrDebuggerClosed is returned by any request enqueued after Destroy has
// been called.
var ErrDebuggerClosed = errors.New("dbg: debugger has been destroyed")

// request is one command-queue entry (spec §3, "Debug request"): a closure
// that performs the OS-level work on the debugger thread, a result slot
// captured by the closure, and a one-shot completion channel standing in
// for the spec's condition variable.
type request struct {
	fn   func() error
	done chan error
}

func newRequest(fn func() error) *request {
	return &request{fn: fn, done: make(chan error, 1)}
}

// enqueue pushes fn onto the command queue and blocks until the debugger
// thread has run it to completion, matching the synchronous contract every
// engine API method promises its caller (spec §4.1).
func (d *Debugger) enqueue(fn func() error) error {
	req := newRequest(fn)
	select {
	case d.queue <- req:
	case <-d.closed:
		return ErrDebuggerClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-d.closed:
		return ErrDebuggerClosed
	}
}

// run is the debugger thread body. It is launched with runtime.LockOSThread
// held for its entire lifetime because ptrace requires every call for a
// given tracee to originate from the same OS thread that seized it
// (grounded on the teacher's handlePtraceFuncs, pkg/proc/native/proc.go).
func (d *Debugger) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		drainedAny := d.drainQueue()

		select {
		case <-d.stopCh:
			d.drainQueue()
			return
		default:
		}

		gotEvent := d.pollOnce()

		if !drainedAny && !gotEvent {
			time.Sleep(idlePollInterval)
		}
	}
}

// drainQueue executes every request currently waiting, in FIFO order,
// returning as soon as the queue is empty (spec §4.1 step 1).
func (d *Debugger) drainQueue() bool {
	any := false
	for {
		select {
		case req := <-d.queue:
			req.done <- req.fn()
			any = true
		default:
			return any
		}
	}
}
