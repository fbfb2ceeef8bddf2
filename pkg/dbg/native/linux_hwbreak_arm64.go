//go:build linux && arm64

package native

import (
	"errors"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/arch"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func (b *LinuxBackend) getWatchState(tid int) (*arch.ARM64WatchpointState, error) {
	words, err := readARM64HWWatch(tid)
	if err != nil {
		return nil, err
	}
	return arch.DecodeARM64WatchpointState(words)
}

func (b *LinuxBackend) WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error {
	st, err := b.getWatchState(tid)
	if err != nil {
		return err
	}
	if err := st.SetWatchpoint(idx, addr, kind, size); err != nil {
		return err
	}
	return writeARM64HWWatch(tid, st.Words)
}

func (b *LinuxBackend) ClearHardwareWatchpoint(tid int, idx uint8) error {
	st, err := b.getWatchState(tid)
	if err != nil {
		return err
	}
	if err := st.ClearWatchpoint(idx); err != nil {
		return err
	}
	return writeARM64HWWatch(tid, st.Words)
}

// ActiveHardwareSlot classifies a stop via siginfo's TRAP_HWBKPT code and
// the faulting address (spec §4.4 item 4, ARM64 path), matching the
// teacher's findHardwareBreakpoint (threads_linux_arm64.go).
func (b *LinuxBackend) ActiveHardwareSlot(tid int) (idx uint8, ok bool, faultAddr uint64, err error) {
	info, err := ptraceGetSiginfo(tid)
	if err != nil {
		return 0, false, 0, err
	}
	if !siginfoIsHWBreak(&info) {
		return 0, false, 0, nil
	}
	st, err := b.getWatchState(tid)
	if err != nil {
		return 0, false, 0, err
	}
	var sizes [16]int
	for i := uint8(0); i < st.Num; i++ {
		sizes[i] = 4
	}
	fault := siginfoAddr(&info)
	slot, matched := st.MatchFault(fault, sizes)
	if !matched {
		return 0, false, fault, errors.New("hardware trap with no matching watchpoint slot")
	}
	return slot, true, fault, nil
}

func (b *LinuxBackend) getBreakState(tid int) (*arch.ARM64BreakpointState, error) {
	words, err := readARM64HWBreak(tid)
	if err != nil {
		return nil, err
	}
	return arch.DecodeARM64BreakpointState(words)
}

// WriteHardwareBreakpoint and ClearHardwareBreakpoint use the NT_ARM_HW_BREAK
// register set, ARM64's execution-breakpoint file, physically distinct from
// NT_ARM_HW_WATCH.
func (b *LinuxBackend) WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error {
	st, err := b.getBreakState(tid)
	if err != nil {
		return err
	}
	if err := st.SetBreakpoint(idx, addr); err != nil {
		return err
	}
	return writeARM64HWBreak(tid, st.Words)
}

func (b *LinuxBackend) ClearHardwareBreakpoint(tid int, idx uint8) error {
	st, err := b.getBreakState(tid)
	if err != nil {
		return err
	}
	if err := st.ClearBreakpoint(idx); err != nil {
		return err
	}
	return writeARM64HWBreak(tid, st.Words)
}
