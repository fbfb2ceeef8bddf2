package arch

import (
	"errors"
	"fmt"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// ARM64MaxHardwareWatchpoints and ARM64MaxHardwareBreakpoints are backed
// by the DBGWVR/DBGWCR and DBGBVR/DBGBCR register files respectively; the
// spec's platform max is 4 for watchpoints (matching x86_64 capacity for
// simplicity of the fixed-size table) and 16 for execution breakpoints
// (spec §3).
const (
	ARM64MaxHardwareWatchpoints = 4
	ARM64MaxHardwareBreakpoints = 16
)

// ARM64WatchpointState is a decode/encode view over the NT_ARM_HW_WATCH
// register set as described by user_hwdebug_state in
// arch/arm64/include/uapi/asm/ptrace.h: one control word (num watchpoints,
// debug architecture version) followed by up to 16 (addr, ctrl) pairs.
type ARM64WatchpointState struct {
	Num      uint8
	DebugVer uint8
	Words    []uint64 // len == 1+2*Num
}

// DecodeARM64WatchpointState interprets a raw NT_ARM_HW_WATCH register set
// blob as returned by the platform primitive.
func DecodeARM64WatchpointState(words []uint64) (*ARM64WatchpointState, error) {
	if len(words) == 0 {
		return nil, errors.New("empty watchpoint register set")
	}
	num := uint8(words[0] & 0xff)
	if int(num) > 16 {
		num = 16
	}
	need := 1 + int(num)*2
	if len(words) < need {
		return nil, fmt.Errorf("short watchpoint register set: have %d words, need %d", len(words), need)
	}
	return &ARM64WatchpointState{
		Num:      num,
		DebugVer: uint8((words[0] >> 8) & 0xff),
		Words:    append([]uint64(nil), words[:need]...),
	}, nil
}

func (s *ARM64WatchpointState) set(idx uint8, addr, ctrl uint64) {
	s.Words[1+int(idx)*2] = addr
	s.Words[1+int(idx)*2+1] = ctrl
}

func (s *ARM64WatchpointState) get(idx uint8) (addr, ctrl uint64) {
	return s.Words[1+int(idx)*2], s.Words[1+int(idx)*2+1]
}

const (
	arm64WatchRead  = 0x1
	arm64WatchWrite = 0x2
	arm64LenBit     = 5
	arm64TypeBit    = 3
	arm64PrivBit    = 1
)

// EncodeControl builds a DBGWCRn_EL1 control word for the given access
// type and byte length, following ARM ARMv8 §D13.3.11 (only BAS, LSC, PAC
// and E are used, matching the teacher's ptrace-based encoder).
func EncodeControl(kind proto.AccessType, size int) (ctrl uint64, clampedSize int) {
	var typ uint64
	switch kind {
	case proto.AccessRead:
		typ = arm64WatchRead
	case proto.AccessWrite:
		typ = arm64WatchWrite
	case proto.AccessReadWrite:
		typ = arm64WatchRead | arm64WatchWrite
	}
	switch size {
	case 1, 2, 4, 8:
		clampedSize = size
	default:
		clampedSize = 4
	}
	length := uint64((1 << clampedSize) - 1) // address bitmask, per ARM encoding
	priv := uint64(3)                        // EL0, matching user-mode target threads
	ctrl = (length << arm64LenBit) | (typ << arm64TypeBit) | (priv << arm64PrivBit) | 1
	return ctrl, clampedSize
}

// SetWatchpoint writes addr/ctrl into slot idx of the watchpoint state,
// returning an error if idx exceeds the hardware's reported capacity.
func (s *ARM64WatchpointState) SetWatchpoint(idx uint8, addr uint64, kind proto.AccessType, size int) error {
	if idx >= s.Num {
		return fmt.Errorf("hardware watchpoints exhausted (hardware supports %d)", s.Num)
	}
	ctrl, _ := EncodeControl(kind, size)
	s.set(idx, addr, ctrl)
	return nil
}

// ClearWatchpoint disables slot idx.
func (s *ARM64WatchpointState) ClearWatchpoint(idx uint8) error {
	if idx >= s.Num {
		return fmt.Errorf("hardware watchpoints exhausted (hardware supports %d)", s.Num)
	}
	s.set(idx, 0, 0)
	return nil
}

// ARM64BreakpointState is the execution-breakpoint analogue of
// ARM64WatchpointState, decoding the NT_ARM_HW_BREAK register set
// (DBGBVR/DBGBCR) instead of NT_ARM_HW_WATCH. It is physically independent
// hardware from the watchpoint register file, unlike x86_64 where both
// features share DR0-DR3.
type ARM64BreakpointState struct {
	Num      uint8
	DebugVer uint8
	Words    []uint64
}

// DecodeARM64BreakpointState interprets a raw NT_ARM_HW_BREAK blob.
func DecodeARM64BreakpointState(words []uint64) (*ARM64BreakpointState, error) {
	if len(words) == 0 {
		return nil, errors.New("empty breakpoint register set")
	}
	num := uint8(words[0] & 0xff)
	if int(num) > 16 {
		num = 16
	}
	need := 1 + int(num)*2
	if len(words) < need {
		return nil, fmt.Errorf("short breakpoint register set: have %d words, need %d", len(words), need)
	}
	return &ARM64BreakpointState{
		Num:      num,
		DebugVer: uint8((words[0] >> 8) & 0xff),
		Words:    append([]uint64(nil), words[:need]...),
	}, nil
}

func (s *ARM64BreakpointState) set(idx uint8, addr, ctrl uint64) {
	s.Words[1+int(idx)*2] = addr
	s.Words[1+int(idx)*2+1] = ctrl
}

// SetBreakpoint arms slot idx to trap execution at addr. BAS is set to
// 0xf (match any byte of the 4-byte-aligned instruction word), matching
// how the teacher's ARM64 watchpoint control words are built.
func (s *ARM64BreakpointState) SetBreakpoint(idx uint8, addr uint64) error {
	if idx >= s.Num {
		return fmt.Errorf("hardware breakpoints exhausted (hardware supports %d)", s.Num)
	}
	const bas = 0xf
	priv := uint64(3) // EL0
	ctrl := (bas << arm64LenBit) | (priv << arm64PrivBit) | 1
	s.set(idx, addr&^0x3, ctrl)
	return nil
}

// ClearBreakpoint disables slot idx.
func (s *ARM64BreakpointState) ClearBreakpoint(idx uint8) error {
	if idx >= s.Num {
		return fmt.Errorf("hardware breakpoints exhausted (hardware supports %d)", s.Num)
	}
	s.set(idx, 0, 0)
	return nil
}

// MatchFault looks up which slot, if any, covers faultAddr, first by exact
// containment and then (spec §4.2 "Tie-break and ordering") by an
// aligned-by-8 fallback to accommodate coarser hardware reporting.
func (s *ARM64WatchpointState) MatchFault(faultAddr uint64, sizes [16]int) (idx uint8, ok bool) {
	for i := uint8(0); i < s.Num; i++ {
		addr, ctrl := s.get(i)
		if ctrl&1 == 0 || addr == 0 {
			continue
		}
		sz := sizes[i]
		if sz == 0 {
			sz = 4
		}
		if faultAddr >= addr && faultAddr < addr+uint64(sz) {
			return i, true
		}
	}
	for i := uint8(0); i < s.Num; i++ {
		addr, ctrl := s.get(i)
		if ctrl&1 == 0 || addr == 0 {
			continue
		}
		alignedFault := faultAddr &^ 0x7
		alignedAddr := addr &^ 0x7
		if alignedFault == alignedAddr {
			return i, true
		}
	}
	return 0, false
}
