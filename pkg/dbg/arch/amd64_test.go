package arch

import (
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func TestAMD64SetGetWatchpointRoundTrip(t *testing.T) {
	var dr0, dr1, dr2, dr3, dr6, dr7 uint64
	regs := NewAMD64DebugRegisters(&dr0, &dr1, &dr2, &dr3, &dr6, &dr7)

	read, write, size := EncodeAccess(proto.AccessWrite, 4)
	if !write || read {
		t.Fatalf("EncodeAccess(write, 4) = read=%v write=%v, want read=false write=true", read, write)
	}
	if size != 4 {
		t.Fatalf("EncodeAccess size = %d, want 4", size)
	}

	if err := regs.SetWatchpoint(0, 0x1000, read, write, size); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	if dr0 != 0x1000 {
		t.Errorf("dr0 = %#x, want 0x1000", dr0)
	}
	if dr7&1 == 0 {
		t.Error("dr7 enable bit for slot 0 not set")
	}

	// Reprogramming the same slot identically must be a no-op, not an error.
	if err := regs.SetWatchpoint(0, 0x1000, read, write, size); err != nil {
		t.Fatalf("idempotent re-set should succeed: %v", err)
	}

	// A conflicting reprogram of the same slot must fail.
	if err := regs.SetWatchpoint(0, 0x2000, read, write, size); err == nil {
		t.Error("expected conflict error reprogramming an in-use slot with a different address")
	}

	regs.ClearWatchpoint(0)
	if dr0 != 0 || dr7&1 != 0 {
		t.Errorf("ClearWatchpoint did not reset slot: dr0=%#x dr7=%#x", dr0, dr7)
	}
}

func TestAMD64ActiveSlot(t *testing.T) {
	var dr0, dr1, dr2, dr3, dr6, dr7 uint64
	regs := NewAMD64DebugRegisters(&dr0, &dr1, &dr2, &dr3, &dr6, &dr7)

	if err := regs.SetWatchpoint(2, 0x3000, false, true, 4); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	dr6 |= 1 << 2

	ok, idx := regs.ActiveSlot()
	if !ok || idx != 2 {
		t.Fatalf("ActiveSlot() = ok=%v idx=%d, want ok=true idx=2", ok, idx)
	}
	if dr6&(1<<2) != 0 {
		t.Error("ActiveSlot did not clear the condition bit")
	}
}

func TestAMD64ReadOnlyWatchpointRejected(t *testing.T) {
	var dr0, dr1, dr2, dr3, dr6, dr7 uint64
	regs := NewAMD64DebugRegisters(&dr0, &dr1, &dr2, &dr3, &dr6, &dr7)
	if err := regs.SetWatchpoint(0, 0x1000, true, false, 4); err == nil {
		t.Error("expected error: x86_64 does not support read-only hardware watchpoints")
	}
}
