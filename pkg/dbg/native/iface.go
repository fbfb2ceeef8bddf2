// Package native implements the thin, platform-specific shim that performs
// the actual OS calls on behalf of the engine: stop/resume a thread,
// read/write registers, peek/poke target memory, wait for the next debug
// event, enumerate threads, and spawn or attach to a target (spec §2 item
// 1, §4.6, §4.8).
package native

import "github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"

// Backend is the platform-primitives interface every OS/architecture
// combination implements. Exactly one goroutine (the engine's debugger
// thread) may call these methods, matching the "only the tracer thread may
// ptrace its tracees" requirement on Linux (spec §4.1).
type Backend interface {
	// Arch reports the target's instruction set.
	Arch() proto.Arch

	// Threads enumerates the target's live thread identifiers.
	Threads() ([]int, error)

	// Seize establishes a trace relationship with tid without stopping it
	// (spec §4.6, "Attach").
	Seize(tid int) error

	// Detach releases the trace relationship, letting the thread run free.
	Detach(tid int) error

	// Stop makes a running thread enter a debug stop (best-effort;
	// coordinator polls for completion).
	Stop(tid int) error

	// Resume continues a stopped thread, optionally delivering sig
	// (0 = none).
	Resume(tid int, sig int) error

	// SingleStep issues a resume-for-one-instruction request and returns
	// immediately; the resulting trap arrives later through WaitEvent like
	// any other stop (spec §4.4 item 3).
	SingleStep(tid int) error

	// GetRegisters reads tid's general-purpose register file.
	GetRegisters(tid int) (proto.Registers, error)

	// SetRegisters writes tid's general-purpose register file.
	SetRegisters(tid int, regs proto.Registers) error

	// PeekWord reads one machine word from the target's address space.
	PeekWord(addr uint64) (uint64, error)

	// PokeWord writes one machine word to the target's address space.
	PokeWord(addr uint64, word uint64) error

	// WaitEvent blocks (unless nohang) for the next debug event from any
	// attached thread.
	WaitEvent(nohang bool) (*proto.StopEvent, error)

	// WriteHardwareWatchpoint programs hardware watchpoint slot idx on tid.
	WriteHardwareWatchpoint(tid int, idx uint8, addr uint64, kind proto.AccessType, size int) error

	// ClearHardwareWatchpoint disables hardware watchpoint slot idx on tid.
	ClearHardwareWatchpoint(tid int, idx uint8) error

	// ActiveHardwareSlot returns which hardware watchpoint slot (if any)
	// trapped on tid's last stop (spec §4.4 item 4). On x86_64 the slot
	// comes from DR6 and can equally be a hardware execution breakpoint's,
	// since both kinds share DR0-DR3; the engine tells them apart by
	// checking its own watchpoint table and, failing that, comparing the
	// stopped PC against its breakpoint table (spec §4.4 item 5).
	ActiveHardwareSlot(tid int) (idx uint8, ok bool, faultAddr uint64, err error)

	// WriteHardwareBreakpoint programs hardware execution breakpoint slot
	// idx on tid to trap when the instruction pointer reaches addr.
	WriteHardwareBreakpoint(tid int, idx uint8, addr uint64) error

	// ClearHardwareBreakpoint disables hardware execution breakpoint slot
	// idx on tid.
	ClearHardwareBreakpoint(tid int, idx uint8) error

	// Kill terminates the whole target process.
	Kill() error
}

// SpawnResult describes a spawned target's pid and PTY master. Spawn
// itself returns the backend and pid directly and does not produce one.
type SpawnResult struct {
	Pid       int
	MasterPTY int // -1 if no PTY was requested
}
