//go:build linux && amd64

package native

import (
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/arch"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func (b *LinuxBackend) withDebugRegisters(tid int, fn func(*arch.AMD64DebugRegisters) error) error {
	regs, err := readAMD64DebugRegs(tid)
	if err != nil {
		return err
	}
	drs := arch.NewAMD64DebugRegisters(&regs[0], &regs[1], &regs[2], &regs[3], &regs[6], &regs[7])
	if ferr := fn(drs); ferr != nil {
		return ferr
	}
	if drs.Dirty {
		return writeAMD64DebugRegs(tid, regs)
	}
	return nil
}

func (b *LinuxBackend) WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error {
	read, write, clamped := arch.EncodeAccess(kind, size)
	return b.withDebugRegisters(tid, func(drs *arch.AMD64DebugRegisters) error {
		return drs.SetWatchpoint(idx, addr, read, write, clamped)
	})
}

func (b *LinuxBackend) ClearHardwareWatchpoint(tid int, idx uint8) error {
	return b.withDebugRegisters(tid, func(drs *arch.AMD64DebugRegisters) error {
		drs.ClearWatchpoint(idx)
		return nil
	})
}

func (b *LinuxBackend) ActiveHardwareSlot(tid int) (idx uint8, ok bool, faultAddr uint64, err error) {
	err = b.withDebugRegisters(tid, func(drs *arch.AMD64DebugRegisters) error {
		ok, idx = drs.ActiveSlot()
		return nil
	})
	return idx, ok, 0, err
}

// WriteHardwareBreakpoint and ClearHardwareBreakpoint share the same
// DR0-DR3/DR7 bank as watchpoints: on x86_64 there is only one physical
// four-slot debug register file (spec §3 "Linux limits to 4"). The engine
// is responsible for not double-allocating a physical index to both an
// hardware watchpoint and a hardware breakpoint at once.
func (b *LinuxBackend) WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error {
	return b.withDebugRegisters(tid, func(drs *arch.AMD64DebugRegisters) error {
		return drs.SetBreakpoint(idx, addr)
	})
}

func (b *LinuxBackend) ClearHardwareBreakpoint(tid int, idx uint8) error {
	return b.withDebugRegisters(tid, func(drs *arch.AMD64DebugRegisters) error {
		drs.ClearWatchpoint(idx)
		return nil
	})
}
