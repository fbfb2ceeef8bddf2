package dbg

import (
	"syscall"
	"time"
)

// Timeouts for the stop-the-world coordinator (spec §5 "Cancellation and
// timeouts").
const (
	stopTheWorldTimeout    = 5 * time.Second
	stopPollInterval       = 10 * time.Millisecond
	watchpointDrainTimeout = 1 * time.Second
)

// markStopRequested records that stopWorld is waiting on tid's interrupt-stop,
// so the demultiplexer's interrupt-stop case can hand it back directly
// instead of resuming it as a generic PTRACE_EVENT_STOP.
func (d *Debugger) markStopRequested(tid int) {
	d.stopRequestMu.Lock()
	d.stopRequested[tid] = true
	d.stopRequestMu.Unlock()
}

// consumeStopRequested reports and clears whether tid's interrupt-stop is
// one stopWorld is waiting on.
func (d *Debugger) consumeStopRequested(tid int) bool {
	d.stopRequestMu.Lock()
	defer d.stopRequestMu.Unlock()
	if d.stopRequested[tid] {
		delete(d.stopRequested, tid)
		return true
	}
	return false
}

// stopWorld stops every attached thread other than exclude (0 = none
// excluded), returning threads it actually stopped and threads that were
// already stopped (spec §4.7 "Stop"). It runs on the debugger thread and
// drives the event loop itself while polling for the requested stops to
// materialize, since nothing else will service pending interrupt events
// while this call blocks. Each interrupt it issues is claimed via
// markStopRequested so events.go's interrupt-stop case consumes it and sets
// IsStopped directly, rather than routing it through the generic demux path
// that would otherwise resume the thread it was trying to stop.
func (d *Debugger) stopWorld(exclude int) (stopped, alreadyStopped []int) {
	var pending []int
	for _, tid := range d.attachedThreadIDs() {
		if tid == exclude {
			continue
		}
		ts, ok := d.snapshotThread(tid)
		if !ok {
			continue
		}
		if ts.IsStopped {
			alreadyStopped = append(alreadyStopped, tid)
			continue
		}
		d.markStopRequested(tid)
		if err := d.backend.Stop(tid); err != nil {
			d.logf(LogWarn, "requesting stop of thread %d: %v", tid, err)
			d.consumeStopRequested(tid)
			continue
		}
		pending = append(pending, tid)
	}

	deadline := time.Now().Add(stopTheWorldTimeout)
	for len(pending) > 0 {
		remaining := pending[:0]
		for _, tid := range pending {
			ts, ok := d.snapshotThread(tid)
			if !ok {
				continue
			}
			if ts.IsStopped {
				stopped = append(stopped, tid)
				continue
			}
			remaining = append(remaining, tid)
		}
		pending = remaining
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			for _, tid := range pending {
				d.logf(LogWarn, "thread %d did not stop within %s, cancelling interrupt", tid, stopTheWorldTimeout)
				d.consumeStopRequested(tid)
				_ = d.backend.Resume(tid, 0)
			}
			break
		}
		if !d.pollOnce() {
			time.Sleep(stopPollInterval)
		}
	}
	return stopped, alreadyStopped
}

// resumeWorld issues a plain resume for every listed thread, consuming any
// pending signal (spec §4.7 "Resume"). Threads that no longer exist are
// pruned from the attached set.
func (d *Debugger) resumeWorld(tids []int) {
	for _, tid := range tids {
		var sig int
		d.mutateThread(tid, func(ts *ThreadState) {
			sig = ts.PendingSignal
			ts.PendingSignal = 0
		})
		if err := d.backend.Resume(tid, sig); err != nil {
			d.logf(LogWarn, "resuming thread %d: %v (dropping from attached set)", tid, err)
			d.removeThread(tid)
			continue
		}
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
	}
}

// withStoppedWorld stops every thread but exclude, runs fn, then resumes
// whatever it stopped while leaving already-stopped threads untouched
// (spec §4.7 "Why this design").
func (d *Debugger) withStoppedWorld(exclude int, fn func()) {
	stopped, _ := d.stopWorld(exclude)
	fn()
	d.resumeWorld(stopped)
}

// Suspend marks a user-requested pause pending and sends SIGSTOP to every
// attached thread, so the event demultiplexer's classification item 7
// (spec §4.4) recognizes the resulting stop as user-initiated rather than
// an ordinary caught signal.
func (d *Debugger) Suspend() error {
	return d.enqueue(func() error {
		d.manualStopMu.Lock()
		d.manualStopPending = true
		d.manualStopMu.Unlock()
		for _, tid := range d.attachedThreadIDs() {
			if err := syscall.Kill(tid, syscall.SIGSTOP); err != nil {
				d.logf(LogWarn, "sending SIGSTOP to thread %d: %v", tid, err)
			}
		}
		return nil
	})
}

// ResumeUserStoppedThreads resumes every thread whose StoppedByUser flag is
// set, clearing the flag (spec §4.5 "Resume-user-stopped-threads").
func (d *Debugger) ResumeUserStoppedThreads() error {
	return d.enqueue(func() error {
		d.manualStopMu.Lock()
		d.manualStopPending = false
		d.manualStopMu.Unlock()

		var tids []int
		d.threadsMu.Lock()
		for tid, ts := range d.threads {
			if ts.StoppedByUser {
				tids = append(tids, tid)
				ts.StoppedByUser = false
			}
		}
		d.threadsMu.Unlock()
		d.resumeWorld(tids)
		return nil
	})
}
