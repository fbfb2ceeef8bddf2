package dbg

import (
	"sync"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// fakeBackend is a minimal native.Backend double used by engine-level
// tests that exercise the command queue, event dispatch, and breakpoint
// bookkeeping without a real tracee. Grounded on the teacher's own
// preference for hand-rolled fakes over a mocking framework in its
// pkg/proc tests (no mock library appears anywhere in the teacher's
// dependency graph).
type fakeBackend struct {
	mu    sync.Mutex
	arch  proto.Arch
	regs  map[int]proto.Registers
	words map[uint64]uint64
	tids  []int

	events []*proto.StopEvent

	// hwWatch and singleStepped record calls the breakpoint/watchpoint
	// bookkeeping in the debugger makes against this backend, so tests can
	// assert on fleet-wide programming and step-over behavior without a
	// real tracee.
	hwWatch       map[int]map[uint8]uint64 // tid -> slot -> addr
	singleStepped map[int]bool

	// activeSlot/activeSlotOK/activeSlotFault fix ActiveHardwareSlot's
	// return value for tests exercising the watchpoint-vs-breakpoint
	// dispatch priority, which a real backend would derive from DR6.
	activeSlot      uint8
	activeSlotOK    bool
	activeSlotFault uint64
}

func newFakeBackend(arch proto.Arch) *fakeBackend {
	return &fakeBackend{
		arch:          arch,
		regs:          make(map[int]proto.Registers),
		words:         make(map[uint64]uint64),
		hwWatch:       make(map[int]map[uint8]uint64),
		singleStepped: make(map[int]bool),
	}
}

func (f *fakeBackend) Arch() proto.Arch { return f.arch }

func (f *fakeBackend) Threads() ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.tids...), nil
}

func (f *fakeBackend) Seize(tid int) error {
	f.mu.Lock()
	f.tids = append(f.tids, tid)
	f.regs[tid] = proto.Registers{Arch: f.arch}
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Detach(tid int) error { return nil }
func (f *fakeBackend) Stop(tid int) error   { return nil }
func (f *fakeBackend) Resume(tid int, sig int) error { return nil }

func (f *fakeBackend) SingleStep(tid int) error {
	f.mu.Lock()
	f.singleStepped[tid] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) GetRegisters(tid int) (proto.Registers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[tid], nil
}

func (f *fakeBackend) SetRegisters(tid int, regs proto.Registers) error {
	f.mu.Lock()
	f.regs[tid] = regs
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) PeekWord(addr uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words[addr&^7], nil
}

func (f *fakeBackend) PokeWord(addr uint64, word uint64) error {
	f.mu.Lock()
	f.words[addr&^7] = word
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) WaitEvent(nohang bool) (*proto.StopEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeBackend) pushEvent(ev *proto.StopEvent) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeBackend) WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error {
	f.mu.Lock()
	if f.hwWatch[tid] == nil {
		f.hwWatch[tid] = make(map[uint8]uint64)
	}
	f.hwWatch[tid][idx] = addr
	f.mu.Unlock()
	return nil
}
func (f *fakeBackend) ClearHardwareWatchpoint(tid int, idx uint8) error {
	f.mu.Lock()
	delete(f.hwWatch[tid], idx)
	f.mu.Unlock()
	return nil
}
func (f *fakeBackend) ActiveHardwareSlot(tid int) (uint8, bool, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeSlot, f.activeSlotOK, f.activeSlotFault, nil
}
func (f *fakeBackend) WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error { return nil }
func (f *fakeBackend) ClearHardwareBreakpoint(tid int, idx uint8) error              { return nil }
func (f *fakeBackend) Kill() error                                                   { return nil }
