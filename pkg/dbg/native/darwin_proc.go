//go:build darwin

package native

import (
	"errors"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// ErrNativeBackendDisabled is returned by every DarwinBackend method. The
// Mach task/thread-port and exception-port plumbing spec §2 describes for
// macOS requires cgo bindings the corpus itself only carries behind a
// "macnative" build tag (see the teacher's proc_darwin.go vs.
// nonative_darwin.go); this module keeps the same reduced-surface stub for
// the default build and documents the full backend's shape here instead of
// vendoring cgo headers with no way to compile-test them.
var ErrNativeBackendDisabled = errors.New("darwin native backend requires the macnative build tag (cgo Mach bindings, not vendored)")

// DarwinBackend is the placeholder Backend implementation for macOS.
// A full implementation would hold the task_t and exception/notification
// mach_port_t the teacher's osProcessDetails carries, seizing threads by
// registering a Mach exception port on the task (spec §4.6) instead of
// ptrace.
type DarwinBackend struct{}

func NewDarwinBackend(pid int) *DarwinBackend { return &DarwinBackend{} }

func (b *DarwinBackend) Arch() proto.Arch { return proto.ArchX86_64 }

func (b *DarwinBackend) Threads() ([]int, error)                      { return nil, ErrNativeBackendDisabled }
func (b *DarwinBackend) Seize(tid int) error                          { return ErrNativeBackendDisabled }
func (b *DarwinBackend) Detach(tid int) error                         { return ErrNativeBackendDisabled }
func (b *DarwinBackend) Stop(tid int) error                           { return ErrNativeBackendDisabled }
func (b *DarwinBackend) Resume(tid int, sig int) error                { return ErrNativeBackendDisabled }
func (b *DarwinBackend) SingleStep(tid int) error                     { return ErrNativeBackendDisabled }
func (b *DarwinBackend) GetRegisters(tid int) (proto.Registers, error) {
	return proto.Registers{}, ErrNativeBackendDisabled
}
func (b *DarwinBackend) SetRegisters(tid int, regs proto.Registers) error {
	return ErrNativeBackendDisabled
}
func (b *DarwinBackend) PeekWord(addr uint64) (uint64, error) { return 0, ErrNativeBackendDisabled }
func (b *DarwinBackend) PokeWord(addr uint64, word uint64) error { return ErrNativeBackendDisabled }
func (b *DarwinBackend) WaitEvent(nohang bool) (*proto.StopEvent, error) {
	return nil, ErrNativeBackendDisabled
}
func (b *DarwinBackend) WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error {
	return ErrNativeBackendDisabled
}
func (b *DarwinBackend) ClearHardwareWatchpoint(tid int, idx uint8) error {
	return ErrNativeBackendDisabled
}
func (b *DarwinBackend) ActiveHardwareSlot(tid int) (idx uint8, ok bool, faultAddr uint64, err error) {
	return 0, false, 0, ErrNativeBackendDisabled
}
func (b *DarwinBackend) WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error {
	return ErrNativeBackendDisabled
}
func (b *DarwinBackend) ClearHardwareBreakpoint(tid int, idx uint8) error {
	return ErrNativeBackendDisabled
}
func (b *DarwinBackend) Kill() error { return ErrNativeBackendDisabled }
