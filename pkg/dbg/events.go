package dbg

import (
	"syscall"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// PTRACE_EVENT_CLONE and PTRACE_EVENT_STOP from linux/ptrace.h. Kept here
// rather than imported from x/sys/unix so this file, like the rest of
// pkg/dbg, stays free of a hard Linux build dependency; proto.StopEvent's
// TrapCause carries the platform's raw value straight through.
const (
	ptraceEventClone = 3
	ptraceEventStop  = 128
)

// pollOnce asks the backend for one pending event (non-blocking) and
// dispatches it if there was one. It returns whether an event was found,
// used by run's idle-sleep decision and by callers that pump the event
// loop themselves while waiting on some condition (spec §4.1, §4.7).
func (d *Debugger) pollOnce() bool {
	ev, err := d.backend.WaitEvent(true)
	if err != nil {
		return false
	}
	if ev == nil {
		return false
	}
	d.dispatchEvent(ev)
	return true
}

// dispatchEvent runs the classification priority chain of spec §4.4: the
// first matching case handles the event and returns.
func (d *Debugger) dispatchEvent(ev *proto.StopEvent) {
	tid := ev.ThreadID

	if ev.Exited {
		d.removeThread(tid)
		return
	}

	if ev.Signal == int(syscall.SIGTRAP) && ev.TrapCause == ptraceEventClone {
		if ev.NewThreadID != 0 {
			d.addThread(ev.NewThreadID, true)
		}
		_ = d.backend.Resume(tid, 0)
		return
	}

	if ev.Signal == int(syscall.SIGTRAP) && ev.TrapCause == ptraceEventStop {
		// A group-stop from our own PTRACE_INTERRUPT. If stopWorld is
		// waiting on this specific thread, claim the stop directly and
		// leave it parked rather than resuming it: stopWorld's whole point
		// is to have the thread sit still while it does its work (spec §4.7
		// "Stop"). An interrupt-stop with no matching request (a stray
		// group-stop, or a SEIZE-time artifact) still gets resumed as before.
		if d.consumeStopRequested(tid) {
			d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = true })
			return
		}
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
		return
	}

	if ts, ok := d.snapshotThread(tid); ok && ts.SingleStepMode != StepNone {
		d.dispatchStepCompletion(tid, &ts)
		return
	}

	// ActiveHardwareSlot reports any DR0-DR3 slot that fired via DR6 on
	// amd64, which includes execution breakpoints since SetBreakpoint also
	// enables its DR7 bit; only treat the hit as a watchpoint when that slot
	// is actually one of ours, otherwise fall through to the PC-based
	// breakpoint match below.
	if idx, ok, _, err := d.backend.ActiveHardwareSlot(tid); err == nil && ok {
		d.watchMu.Lock()
		inUse := int(idx) < len(d.watch) && d.watch[idx].InUse
		d.watchMu.Unlock()
		if inUse {
			d.handleWatchpointHit(tid, idx)
			return
		}
	}

	if ev.Signal == int(syscall.SIGTRAP) {
		if regs, err := d.backend.GetRegisters(tid); err == nil {
			if kind, key, idx, found := d.matchBreakpoint(regs.PCValue()); found {
				if kind == BreakpointHardware {
					d.handleHWBreakpointHit(tid, idx)
				} else {
					d.handleSWBreakpointHit(tid, key)
				}
				return
			}
		}
	}

	if ev.Signal == int(syscall.SIGSTOP) {
		d.manualStopMu.Lock()
		pending := d.manualStopPending
		d.manualStopMu.Unlock()
		if pending {
			d.mutateThread(tid, func(ts *ThreadState) {
				ts.IsStopped = true
				ts.StoppedByUser = true
			})
			return
		}
	}

	if ev.Signal != 0 {
		d.handleSignal(tid, ev.Signal, ev.FaultAddr, ev.HasFaultAddr)
		return
	}
}

// dispatchStepCompletion routes a single-step trap to the manager that owns
// the mode the stepping thread was placed in (spec §4.4 item 3).
func (d *Debugger) dispatchStepCompletion(tid int, ts *ThreadState) {
	switch ts.SingleStepMode {
	case StepWatchpointRestore:
		d.completeWatchpointRestore(tid, ts)
	case StepHWBreakpointStep, StepHWBreakpointContinue:
		d.completeHWBreakpointStep(tid, ts)
	case StepSWBreakpointStep, StepSWBreakpointContinue:
		d.completeSWBreakpointStep(tid, ts)
	default:
		d.mutateThread(tid, func(t *ThreadState) { t.SingleStepMode = StepNone })
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
	}
}

// exceptionForSignal maps a stop signal onto the notification's exception
// kind (spec §4.4 "Notification payload").
func exceptionForSignal(sig int) ExceptionType {
	switch syscall.Signal(sig) {
	case syscall.SIGSEGV:
		return ExceptionSigsegv
	case syscall.SIGBUS:
		return ExceptionSigbus
	case syscall.SIGFPE:
		return ExceptionSigfpe
	case syscall.SIGILL:
		return ExceptionSigill
	case syscall.SIGABRT:
		return ExceptionSigabrt
	case syscall.SIGTRAP:
		return ExceptionSigtrap
	default:
		return ExceptionSignal
	}
}

// handleSignal implements spec §4.4 item 6. Unconfigured signals default to
// {catch:false, pass:true}, matching a debugger that gets out of the way of
// anything it hasn't been told to care about. faultAddr/hasFaultAddr carry
// the backend's siginfo.si_addr for segv/bus-style stops so the notification
// payload's memory_address is the actual fault, not always zero.
func (d *Debugger) handleSignal(tid int, sig int, faultAddr uint64, hasFaultAddr bool) {
	disp, ok := d.signals.Get(sig)
	if !ok {
		disp = SignalDisposition{Catch: false, Pass: true}
	}
	if alwaysPassSignals[sig] {
		disp.Pass = true
	}

	if !disp.Catch {
		deliver := 0
		if disp.Pass {
			deliver = sig
		}
		_ = d.backend.Resume(tid, deliver)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
		return
	}

	regs, err := d.backend.GetRegisters(tid)
	if err != nil {
		d.logf(LogWarn, "reading registers for signal %d on thread %d: %v", sig, tid, err)
	}
	pending := 0
	if disp.Pass {
		pending = sig
	}
	d.mutateThread(tid, func(ts *ThreadState) {
		ts.Regs = regs
		ts.PendingSignal = pending
	})

	info := &ExceptionInfo{
		Arch: d.backend.Arch(), Regs: regs, ThreadID: tid,
		ExceptionType: exceptionForSignal(sig),
	}
	if hasFaultAddr {
		info.MemoryAddress = faultAddr
	}
	if !d.notifyBreak(tid, info) {
		_ = d.backend.Resume(tid, pending)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false; ts.PendingSignal = 0 })
	}
}

// notifyBreak invokes the client's on_exception upcall (or a conservative
// stop-by-default when none is installed), records the answer as the
// thread's break state, and returns it so the caller can decide whether to
// step over transparently right away (spec §4.3 "Client response
// semantics").
func (d *Debugger) notifyBreak(tid int, info *ExceptionInfo) bool {
	enter := true
	if d.onException != nil {
		enter = d.onException(info)
	}
	d.mutateThread(tid, func(ts *ThreadState) {
		ts.IsStopped = enter
		ts.Regs = info.Regs
	})
	if enter {
		d.setState(stateForException(info.ExceptionType))
	}
	return enter
}

// getStoppedByBreak reports whether tid is currently marked stopped,
// letting a step-completion handler that ran after notifyBreak already
// recorded the client's decision act on it without threading a return
// value through the intervening asynchronous single-step.
func (d *Debugger) getStoppedByBreak(tid int) bool {
	ts, ok := d.snapshotThread(tid)
	return ok && ts.IsStopped
}

// notifySingleStepComplete delivers the ExceptionSingleStep notification
// for a client-requested SingleStep (spec §4.5 "SingleStep"), always
// leaving the thread parked regardless of the upcall's answer: a step the
// client explicitly asked for always lands them back in break state.
func (d *Debugger) notifySingleStepComplete(tid int) {
	ts, ok := d.snapshotThread(tid)
	if !ok {
		return
	}
	info := &ExceptionInfo{
		Arch: d.backend.Arch(), Regs: ts.Regs, ThreadID: tid,
		ExceptionType: ExceptionSingleStep,
	}
	_ = d.notifyBreak(tid, info)
	d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = true })
}

func stateForException(t ExceptionType) DebugState {
	switch t {
	case ExceptionBreakpoint:
		return StateBreakpointHit
	case ExceptionWatchpoint:
		return StateWatchpointHit
	case ExceptionSingleStep:
		return StateSingleStepping
	default:
		return StatePaused
	}
}
