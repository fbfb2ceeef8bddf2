package dbg

import (
	"syscall"
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func TestDispatchEventExitedRemovesThread(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{42}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	d.dispatchEvent(&proto.StopEvent{ThreadID: 42, Exited: true})

	if d.getThread(42) != nil {
		t.Error("exited thread should be removed from the thread-state map")
	}
}

func TestDispatchEventCloneAddsNewThread(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	d.dispatchEvent(&proto.StopEvent{
		ThreadID: 1, Signal: int(syscall.SIGTRAP), TrapCause: ptraceEventClone, NewThreadID: 2,
	})

	if d.getThread(2) == nil {
		t.Error("clone event should register the new thread")
	}
}

func TestDispatchEventInterruptStopConsumedByStopWorldParksThread(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.markStopRequested(1)

	d.dispatchEvent(&proto.StopEvent{ThreadID: 1, Signal: int(syscall.SIGTRAP), TrapCause: ptraceEventStop})

	ts, _ := d.snapshotThread(1)
	if !ts.IsStopped {
		t.Error("an interrupt-stop stopWorld is waiting on must park the thread, not resume it")
	}
	if d.consumeStopRequested(1) {
		t.Error("consumeStopRequested should already have been cleared by dispatchEvent")
	}
}

func TestDispatchEventInterruptStopWithNoRequestResumes(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })

	d.dispatchEvent(&proto.StopEvent{ThreadID: 1, Signal: int(syscall.SIGTRAP), TrapCause: ptraceEventStop})

	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("a stray interrupt-stop with no matching stopWorld request should still resume")
	}
}

func TestDispatchEventHardwareBreakpointNotMisclassifiedAsWatchpoint(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	backend.activeSlot = 0
	backend.activeSlotOK = true
	d.hwbp[0].InUse = true
	d.hwbp[0].Addr = 0x1000
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	regs := proto.Registers{Arch: proto.ArchX86_64}
	regs.SetPCValue(0x1000)
	if err := backend.SetRegisters(1, regs); err != nil {
		t.Fatalf("SetRegisters: %v", err)
	}

	var gotInfo *ExceptionInfo
	d.onException = func(info *ExceptionInfo) bool {
		gotInfo = info
		return true
	}

	d.dispatchEvent(&proto.StopEvent{ThreadID: 1, Signal: int(syscall.SIGTRAP)})

	if gotInfo == nil {
		t.Fatal("expected the hardware breakpoint's hit-handler to notify")
	}
	if gotInfo.ExceptionType != ExceptionBreakpoint {
		t.Errorf("ExceptionType = %v, want ExceptionBreakpoint (watchpoint slot 0 is unused; ActiveHardwareSlot must not steal this hit)", gotInfo.ExceptionType)
	}
}

func TestHandleSignalUncaughtSignalResumesAndPasses(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })

	d.handleSignal(1, int(syscall.SIGUSR1), 0, false)

	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("an uncaught signal must leave the thread running, not parked")
	}
}

func TestHandleSignalCaughtSignalNotifiesAndParksOnTrue(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.signals.Set(int(syscall.SIGUSR1), true, true)

	var gotInfo *ExceptionInfo
	d.onException = func(info *ExceptionInfo) bool {
		gotInfo = info
		return true
	}

	d.handleSignal(1, int(syscall.SIGUSR1), 0, false)

	if gotInfo == nil {
		t.Fatal("expected on_exception to be called for a caught signal")
	}
	if gotInfo.ExceptionType != ExceptionSignal {
		t.Errorf("ExceptionType = %v, want ExceptionSignal", gotInfo.ExceptionType)
	}
	ts, _ := d.snapshotThread(1)
	if !ts.IsStopped {
		t.Error("thread should stay parked when the client returns true")
	}
}

func TestHandleSignalCaughtSignalReportsFaultAddress(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.signals.Set(int(syscall.SIGSEGV), true, true)

	var gotInfo *ExceptionInfo
	d.onException = func(info *ExceptionInfo) bool {
		gotInfo = info
		return true
	}

	d.dispatchEvent(&proto.StopEvent{
		ThreadID: 1, Signal: int(syscall.SIGSEGV), FaultAddr: 0xdeadbeef, HasFaultAddr: true,
	})

	if gotInfo == nil {
		t.Fatal("expected on_exception to be called for a caught SIGSEGV")
	}
	if gotInfo.MemoryAddress != 0xdeadbeef {
		t.Errorf("MemoryAddress = %#x, want the backend's fault address 0xdeadbeef", gotInfo.MemoryAddress)
	}
}

func TestHandleSignalCaughtSignalResumesOnFalse(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.signals.Set(int(syscall.SIGUSR1), true, false)
	d.onException = func(info *ExceptionInfo) bool { return false }

	d.handleSignal(1, int(syscall.SIGUSR1), 0, false)

	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("thread should resume when the client returns false")
	}
	if ts.PendingSignal != 0 {
		t.Error("PendingSignal should be cleared once delivered on resume")
	}
}
