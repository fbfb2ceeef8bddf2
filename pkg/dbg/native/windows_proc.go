//go:build windows

package native

import (
	"errors"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// ErrNativeBackendDisabled is returned by every WindowsBackend method that
// touches functionality this reduced backend does not implement. A full
// backend would call CreateToolhelp32Snapshot to enumerate threads and
// SuspendThread/GetThreadContext/SetThreadContext for register access, but
// x86 debug-register (Dr0-Dr7) support through SetThreadContext plus the
// WaitForDebugEvent loop needed to demultiplex stops is out of scope for
// this reduced Windows surface; the corpus itself only shows the
// StartProcess/CREATE_DEBUG_ONLY_THIS_PROCESS half of this story.
var ErrNativeBackendDisabled = errors.New("windows native backend is a placeholder: no thread, register, memory or watchpoint access")

// WindowsBackend is a reduced-surface Backend implementation for Windows.
// It exists so the engine's platform-independent packages compile and link
// on Windows; hardware watchpoint and breakpoint support there would need
// CONTEXT.Dr0-Dr7 manipulation via SetThreadContext, which this backend
// does not provide.
type WindowsBackend struct {
	pid int
}

func NewWindowsBackend(pid int) *WindowsBackend { return &WindowsBackend{pid: pid} }

func (b *WindowsBackend) Arch() proto.Arch { return proto.ArchX86_64 }

func (b *WindowsBackend) Threads() ([]int, error)       { return nil, ErrNativeBackendDisabled }
func (b *WindowsBackend) Seize(tid int) error           { return ErrNativeBackendDisabled }
func (b *WindowsBackend) Detach(tid int) error          { return ErrNativeBackendDisabled }
func (b *WindowsBackend) Stop(tid int) error            { return ErrNativeBackendDisabled }
func (b *WindowsBackend) Resume(tid int, sig int) error { return ErrNativeBackendDisabled }
func (b *WindowsBackend) SingleStep(tid int) error      { return ErrNativeBackendDisabled }
func (b *WindowsBackend) GetRegisters(tid int) (proto.Registers, error) {
	return proto.Registers{}, ErrNativeBackendDisabled
}
func (b *WindowsBackend) SetRegisters(tid int, regs proto.Registers) error {
	return ErrNativeBackendDisabled
}
func (b *WindowsBackend) PeekWord(addr uint64) (uint64, error)   { return 0, ErrNativeBackendDisabled }
func (b *WindowsBackend) PokeWord(addr uint64, word uint64) error { return ErrNativeBackendDisabled }
func (b *WindowsBackend) WaitEvent(nohang bool) (*proto.StopEvent, error) {
	return nil, ErrNativeBackendDisabled
}
func (b *WindowsBackend) WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error {
	return ErrNativeBackendDisabled
}
func (b *WindowsBackend) ClearHardwareWatchpoint(tid int, idx uint8) error {
	return ErrNativeBackendDisabled
}
func (b *WindowsBackend) ActiveHardwareSlot(tid int) (idx uint8, ok bool, faultAddr uint64, err error) {
	return 0, false, 0, ErrNativeBackendDisabled
}
func (b *WindowsBackend) WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error {
	return ErrNativeBackendDisabled
}
func (b *WindowsBackend) ClearHardwareBreakpoint(tid int, idx uint8) error {
	return ErrNativeBackendDisabled
}
func (b *WindowsBackend) Kill() error { return ErrNativeBackendDisabled }
