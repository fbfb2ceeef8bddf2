package dbg

import (
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func TestSetWatchpointAllocatesLowestFreeSlotAndProgramsThreads(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1, 2}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	idx, err := d.SetWatchpoint(0x4000, 4, AccessWrite)
	if err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0 (first free slot)", idx)
	}
	if !d.watch[0].InUse || d.watch[0].Addr != 0x4000 {
		t.Fatalf("slot 0 not recorded: InUse=%v Addr=%#x", d.watch[0].InUse, d.watch[0].Addr)
	}
	for _, tid := range []int{1, 2} {
		if _, ok := backend.hwWatch[tid][0]; !ok {
			t.Errorf("thread %d missing programmed watchpoint in slot 0", tid)
		}
	}
}

func TestSetWatchpointClampsUnsupportedSize(t *testing.T) {
	if got := clampWatchSize(3); got != 4 {
		t.Errorf("clampWatchSize(3) = %d, want 4", got)
	}
	if got := clampWatchSize(8); got != 8 {
		t.Errorf("clampWatchSize(8) = %d, want 8", got)
	}
}

func TestSetWatchpointCapacityExhausted(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	for i := 0; i < len(d.watch); i++ {
		if _, err := d.SetWatchpoint(uint64(0x1000*(i+1)), 4, AccessWrite); err != nil {
			t.Fatalf("SetWatchpoint #%d: %v", i, err)
		}
	}
	if _, err := d.SetWatchpoint(0x9999, 4, AccessWrite); err != ErrCapacity {
		t.Fatalf("expected ErrCapacity once all slots are used, got %v", err)
	}
}

func TestRemoveWatchpointUnknownAddrErrors(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := d.RemoveWatchpoint(0xdead); err != ErrNotFound {
		t.Fatalf("RemoveWatchpoint on unknown addr = %v, want ErrNotFound", err)
	}
}

func TestRemoveWatchpointClearsFleetWideAndFreesSlot(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1, 2}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	idx, err := d.SetWatchpoint(0x4000, 4, AccessWrite)
	if err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}

	if err := d.RemoveWatchpoint(0x4000); err != nil {
		t.Fatalf("RemoveWatchpoint: %v", err)
	}
	if d.watch[idx].InUse {
		t.Error("slot should be marked free after removal")
	}
	for _, tid := range []int{1, 2} {
		if _, ok := backend.hwWatch[tid][uint8(idx)]; ok {
			t.Errorf("thread %d still carries cleared watchpoint slot %d", tid, idx)
		}
	}

	idx2, err := d.SetWatchpoint(0x5000, 4, AccessWrite)
	if err != nil {
		t.Fatalf("SetWatchpoint after free: %v", err)
	}
	if idx2 != idx {
		t.Errorf("freed slot %d should be reused, got %d", idx, idx2)
	}
}

func TestHandleWatchpointHitAlwaysStepsRegardlessOfClientResponse(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := d.SetWatchpoint(0x4000, 4, AccessWrite); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.onException = func(info *ExceptionInfo) bool { return false }

	d.handleWatchpointHit(1, 0)

	ts, _ := d.snapshotThread(1)
	if ts.SingleStepMode != StepWatchpointRestore {
		t.Fatalf("SingleStepMode = %v, want StepWatchpointRestore", ts.SingleStepMode)
	}
	if !backend.singleStepped[1] {
		t.Error("handleWatchpointHit must single-step past the watchpoint unconditionally")
	}
}

func TestCompleteWatchpointRestoreReapliesAndResumesWhenNotParked(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := d.SetWatchpoint(0x4000, 4, AccessWrite); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	// IsStopped false: the client answered "don't break" at hit time, so
	// notifyBreak left the thread unparked.
	d.mutateThread(1, func(ts *ThreadState) {
		ts.IsStopped = false
		ts.SingleStepMode = StepWatchpointRestore
		ts.CurrentBreakpointIdx = 0
	})
	d.watch[0].Removal.enterHandler()

	d.completeWatchpointRestore(1, mustSnapshot(t, d, 1))

	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("thread should resume once the restore step completes and it was not parked at break")
	}
	if _, ok := backend.hwWatch[1][0]; !ok {
		t.Error("watchpoint should be reapplied to the thread after restore")
	}
}

func mustSnapshot(t *testing.T, d *Debugger, tid int) *ThreadState {
	t.Helper()
	ts, ok := d.snapshotThread(tid)
	if !ok {
		t.Fatalf("no thread state for tid %d", tid)
	}
	return &ts
}
