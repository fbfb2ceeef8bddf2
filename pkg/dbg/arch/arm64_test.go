package arch

import (
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func makeWatchpointWords(num uint8) []uint64 {
	words := make([]uint64, 1+int(num)*2)
	words[0] = uint64(num)
	return words
}

func TestARM64WatchpointSetGetRoundTrip(t *testing.T) {
	words := makeWatchpointWords(4)
	state, err := DecodeARM64WatchpointState(words)
	if err != nil {
		t.Fatalf("DecodeARM64WatchpointState: %v", err)
	}
	if state.Num != 4 {
		t.Fatalf("Num = %d, want 4", state.Num)
	}

	if err := state.SetWatchpoint(1, 0x8000, proto.AccessReadWrite, 8); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}
	addr, ctrl := state.get(1)
	if addr != 0x8000 {
		t.Errorf("addr = %#x, want 0x8000", addr)
	}
	if ctrl&1 == 0 {
		t.Error("control word enable bit not set")
	}

	if err := state.SetWatchpoint(9, 0x9000, proto.AccessRead, 4); err == nil {
		t.Error("expected error: slot 9 exceeds reported capacity of 4")
	}

	if err := state.ClearWatchpoint(1); err != nil {
		t.Fatalf("ClearWatchpoint: %v", err)
	}
	addr, ctrl = state.get(1)
	if addr != 0 || ctrl != 0 {
		t.Errorf("ClearWatchpoint left addr=%#x ctrl=%#x, want both zero", addr, ctrl)
	}
}

func TestARM64EncodeControlClampsSize(t *testing.T) {
	ctrl, size := EncodeControl(proto.AccessWrite, 3)
	if size != 4 {
		t.Errorf("clamped size = %d, want 4", size)
	}
	if ctrl&1 == 0 {
		t.Error("control word enable bit not set")
	}
}

func TestARM64MatchFaultExactAndAligned(t *testing.T) {
	words := makeWatchpointWords(2)
	state, err := DecodeARM64WatchpointState(words)
	if err != nil {
		t.Fatalf("DecodeARM64WatchpointState: %v", err)
	}
	if err := state.SetWatchpoint(0, 0x4000, proto.AccessWrite, 4); err != nil {
		t.Fatalf("SetWatchpoint: %v", err)
	}

	var sizes [16]int
	sizes[0] = 4

	if idx, ok := state.MatchFault(0x4002, sizes); !ok || idx != 0 {
		t.Errorf("exact-containment match failed: idx=%d ok=%v", idx, ok)
	}
	// An address in the same aligned-8 block but outside the exact range
	// still matches via the coarse fallback (spec §4.2 tie-break).
	if idx, ok := state.MatchFault(0x4006, sizes); !ok || idx != 0 {
		t.Errorf("aligned-fallback match failed: idx=%d ok=%v", idx, ok)
	}
	if _, ok := state.MatchFault(0x5000, sizes); ok {
		t.Error("expected no match for an address in an unrelated block")
	}
}

func TestARM64BreakpointSetClear(t *testing.T) {
	words := make([]uint64, 1+2*4)
	words[0] = 4
	state, err := DecodeARM64BreakpointState(words)
	if err != nil {
		t.Fatalf("DecodeARM64BreakpointState: %v", err)
	}
	if err := state.SetBreakpoint(0, 0x1003); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if state.Words[1] != 0x1000 {
		t.Errorf("SetBreakpoint did not align address down to 4: got %#x", state.Words[1])
	}
	if err := state.ClearBreakpoint(0); err != nil {
		t.Fatalf("ClearBreakpoint: %v", err)
	}
	if state.Words[1] != 0 || state.Words[2] != 0 {
		t.Error("ClearBreakpoint did not zero the slot")
	}
}
