package dbg

import (
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// stopWorld's not-yet-stopped path polls the real event loop against
// stopTheWorldTimeout, which fakeBackend.Stop cannot satisfy (it never
// actually flips IsStopped). These tests exercise the already-stopped and
// resume paths, which is what a real caller relies on when acquiring a
// stop-the-world window over threads it already knows are parked.

func TestStopWorldReturnsAlreadyStoppedThreadsImmediately(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1, 2}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.mutateThread(2, func(ts *ThreadState) { ts.IsStopped = true })

	stopped, alreadyStopped := d.stopWorld(0)
	if len(stopped) != 0 {
		t.Errorf("stopped = %v, want none (both threads were already parked)", stopped)
	}
	if len(alreadyStopped) != 2 {
		t.Errorf("alreadyStopped = %v, want both threads", alreadyStopped)
	}
}

func TestStopWorldExcludesRequestedThread(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1, 2}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })
	d.mutateThread(2, func(ts *ThreadState) { ts.IsStopped = true })

	_, alreadyStopped := d.stopWorld(1)
	for _, tid := range alreadyStopped {
		if tid == 1 {
			t.Error("excluded thread must not appear in either result slice")
		}
	}
}

func TestResumeWorldConsumesPendingSignal(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) {
		ts.IsStopped = true
		ts.PendingSignal = 5
	})

	d.resumeWorld([]int{1})

	ts, _ := d.snapshotThread(1)
	if ts.IsStopped {
		t.Error("resumeWorld should mark the thread running")
	}
	if ts.PendingSignal != 0 {
		t.Error("resumeWorld should consume PendingSignal once delivered")
	}
}

func TestWithStoppedWorldLeavesAlreadyStoppedThreadsStopped(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true })

	ran := false
	d.withStoppedWorld(0, func() { ran = true })

	if !ran {
		t.Fatal("withStoppedWorld did not run its callback")
	}
	ts, _ := d.snapshotThread(1)
	if !ts.IsStopped {
		t.Error("a thread that was already stopped before the window must remain stopped after it")
	}
}

func TestResumeUserStoppedThreadsClearsFlagAndResumes(t *testing.T) {
	d, backend := newTestDebugger(t, proto.ArchX86_64)
	backend.tids = []int{1, 2}
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	d.mutateThread(1, func(ts *ThreadState) { ts.IsStopped = true; ts.StoppedByUser = true })
	d.mutateThread(2, func(ts *ThreadState) { ts.IsStopped = true })

	if err := d.ResumeUserStoppedThreads(); err != nil {
		t.Fatalf("ResumeUserStoppedThreads: %v", err)
	}

	ts1, _ := d.snapshotThread(1)
	if ts1.IsStopped || ts1.StoppedByUser {
		t.Errorf("thread 1 = %+v, want resumed with StoppedByUser cleared", ts1)
	}
	ts2, _ := d.snapshotThread(2)
	if !ts2.IsStopped {
		t.Error("thread 2 was not user-stopped and must remain untouched")
	}
}
