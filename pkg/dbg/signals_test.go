package dbg

import (
	"syscall"
	"testing"
)

func TestSignalTableSetGetRemove(t *testing.T) {
	tbl := newSignalTable()

	if _, ok := tbl.Get(int(syscall.SIGUSR1)); ok {
		t.Fatal("expected no disposition configured for a fresh table")
	}

	tbl.Set(int(syscall.SIGUSR1), true, false)
	disp, ok := tbl.Get(int(syscall.SIGUSR1))
	if !ok {
		t.Fatal("expected disposition after Set")
	}
	if !disp.Catch || disp.Pass {
		t.Errorf("disposition = %+v, want Catch=true Pass=false", disp)
	}

	tbl.Remove(int(syscall.SIGUSR1))
	if _, ok := tbl.Get(int(syscall.SIGUSR1)); ok {
		t.Error("expected disposition removed")
	}
}

func TestSignalTableListReturnsSnapshot(t *testing.T) {
	tbl := newSignalTable()
	tbl.Set(int(syscall.SIGUSR1), true, true)
	tbl.Set(int(syscall.SIGUSR2), false, true)

	list := tbl.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}

	// Mutating the returned map must not affect the table's own state.
	delete(list, int(syscall.SIGUSR1))
	if _, ok := tbl.Get(int(syscall.SIGUSR1)); !ok {
		t.Error("List() snapshot mutation leaked into the table")
	}
}

func TestAlwaysPassSignalsOverridesCatchOnlyDisposition(t *testing.T) {
	if !alwaysPassSignals[int(syscall.SIGPWR)] {
		t.Fatal("SIGPWR must always be forwarded")
	}
	if !alwaysPassSignals[int(syscall.SIGXCPU)] {
		t.Fatal("SIGXCPU must always be forwarded")
	}
	if alwaysPassSignals[int(syscall.SIGUSR1)] {
		t.Error("SIGUSR1 should follow its configured disposition, not be forced")
	}
}
