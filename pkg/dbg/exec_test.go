package dbg

import (
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func TestContinueOnPlainStoppedThreadResumes(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })

	if err := d.Continue(1); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("Continue on a plainly-stopped thread should resume it")
	}
}

func TestContinueOnNotStoppedThreadErrors(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := d.Continue(1); err == nil {
		t.Error("Continue on a running thread should error")
	}
}

func TestContinueParkedAtHardwareBreakpointStepsOverFirst(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.hwbp[0].InUse = true
	d.hwbp[0].Addr = 0x1000
	d.mutateThread(1, func(ts *ThreadState) {
		ts.IsStopped = true
		ts.CurrentBreakpointIdx = 0
	})

	if err := d.Continue(1); err != nil {
		t.Fatalf("Continue: %v", err)
	}

	ts, _ := d.snapshotThread(1)
	if ts.SingleStepMode != StepHWBreakpointContinue {
		t.Fatalf("SingleStepMode = %v, want StepHWBreakpointContinue (deferred step-over)", ts.SingleStepMode)
	}
	if !ts.IsStopped {
		t.Error("thread must stay marked stopped until the step-over's completion resumes it")
	}
}

func TestSingleStepOverSoftwareBreakpointRestoresBytesFirst(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	backend.words[0x2000] = 0x1122334455667700 | 0xcc
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.swbp[0x2000] = &SWBreakpointSlot{ID: 1, Addr: 0x2000, InUse: true, Original: []byte{0x88}}
	d.mutateThread(1, func(ts *ThreadState) {
		ts.IsStopped = true
		ts.DisabledWatchIdx = swBreakpointDisabledIndex(1)
	})

	if err := d.SingleStep(1); err != nil {
		t.Fatalf("SingleStep: %v", err)
	}

	word := backend.words[0x2000]
	if byte(word) != 0x88 {
		t.Fatalf("expected original byte restored before stepping, got %#x", byte(word))
	}
	ts, _ := d.snapshotThread(1)
	if ts.SingleStepMode != StepSWBreakpointStep {
		t.Fatalf("SingleStepMode = %v, want StepSWBreakpointStep", ts.SingleStepMode)
	}
}
