// Package dbg implements the cross-platform, multi-threaded process
// debugger core: per-thread hardware/software breakpoint and watchpoint
// management, a stop-the-world coordinator, an event demultiplexer, and a
// single-goroutine command queue that owns every OS debug-interface call.
package dbg

import (
	"sync"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// The engine speaks proto's vocabulary directly; these aliases let callers
// write dbg.Arch, dbg.Registers, etc. without importing proto themselves.
type (
	Arch               = proto.Arch
	AccessType         = proto.AccessType
	BreakpointKind     = proto.BreakpointKind
	SingleStepMode     = proto.SingleStepMode
	ExceptionType      = proto.ExceptionType
	LogLevel           = proto.LogLevel
	Registers          = proto.Registers
	SignalDisposition  = proto.SignalDisposition
	ExceptionInfo      = proto.ExceptionInfo
)

const (
	ArchUnknown = proto.ArchUnknown
	ArchARM64   = proto.ArchARM64
	ArchX86_64  = proto.ArchX86_64

	AccessRead      = proto.AccessRead
	AccessWrite     = proto.AccessWrite
	AccessReadWrite = proto.AccessReadWrite

	BreakpointHardware = proto.BreakpointHardware
	BreakpointSoftware = proto.BreakpointSoftware

	StepNone                 = proto.StepNone
	StepWatchpointRestore    = proto.StepWatchpointRestore
	StepHWBreakpointStep     = proto.StepHWBreakpointStep
	StepHWBreakpointContinue = proto.StepHWBreakpointContinue
	StepSWBreakpointStep     = proto.StepSWBreakpointStep
	StepSWBreakpointContinue = proto.StepSWBreakpointContinue

	ExceptionUnknown    = proto.ExceptionUnknown
	ExceptionBreakpoint = proto.ExceptionBreakpoint
	ExceptionWatchpoint = proto.ExceptionWatchpoint
	ExceptionSingleStep = proto.ExceptionSingleStep
	ExceptionSignal     = proto.ExceptionSignal
	ExceptionSigsegv    = proto.ExceptionSigsegv
	ExceptionSigbus     = proto.ExceptionSigbus
	ExceptionSigfpe     = proto.ExceptionSigfpe
	ExceptionSigill     = proto.ExceptionSigill
	ExceptionSigabrt    = proto.ExceptionSigabrt
	ExceptionSigtrap    = proto.ExceptionSigtrap

	LogError = proto.LogError
	LogWarn  = proto.LogWarn
	LogInfo  = proto.LogInfo
	LogDebug = proto.LogDebug
	LogTrace = proto.LogTrace
)

// DebugState is the debugger-wide execution state (spec §3).
type DebugState uint8

const (
	StateRunning DebugState = iota
	StateBreakpointHit
	StateWatchpointHit
	StateSingleStepping
	StatePaused
)

// WatchpointSlot is one entry of the fixed-capacity hardware watchpoint
// table (spec §3, "Watchpoint slot").
type WatchpointSlot struct {
	InUse   bool
	Addr    uint64
	Size    int
	Type    AccessType
	Removal removalSync
}

// HWBreakpointSlot is one entry of the fixed-capacity hardware execution
// breakpoint table (spec §3, "Hardware-breakpoint slot").
type HWBreakpointSlot struct {
	InUse        bool
	Addr         uint64
	HitCount     uint64
	TargetHits   uint64 // 0 = wait-mode, >0 = trace-mode
	TraceEndAddr uint64
	HasEndAddr   bool
	Removal      removalSync
}

// SWBreakpointSlot is one entry of the unbounded software breakpoint map,
// keyed by address (spec §3, "Software-breakpoint slot").
type SWBreakpointSlot struct {
	ID         int // monotonically assigned, used to encode ThreadState.DisabledWatchIdx
	InUse      bool
	Addr       uint64
	Original   []byte
	HitCount   uint64
	TargetHits uint64
}

// removalSync guards draining of concurrent hit-handlers during removal of
// a hardware watchpoint or breakpoint slot (spec §3 invariants).
type removalSync struct {
	mu             sync.Mutex
	removing       bool
	activeHandlers int
}

func (r *removalSync) beginRemoval() {
	r.mu.Lock()
	r.removing = true
	r.mu.Unlock()
}

func (r *removalSync) isRemoving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removing
}

func (r *removalSync) enterHandler() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removing {
		return false
	}
	r.activeHandlers++
	return true
}

func (r *removalSync) leaveHandler() {
	r.mu.Lock()
	r.activeHandlers--
	r.mu.Unlock()
}

func (r *removalSync) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeHandlers
}

func (r *removalSync) reset() {
	r.mu.Lock()
	r.removing = false
	r.activeHandlers = 0
	r.mu.Unlock()
}

// ThreadState is the per-thread record described in spec §3.
type ThreadState struct {
	ThreadID int

	SingleStepMode       SingleStepMode
	SingleStepCount      int
	CurrentBreakpointIdx int // hardware slot being stepped past, or -1
	DisabledWatchIdx     int // sw bp ID + 1000 while parked on/stepping past it; -1 if none
	OriginalWCR          uint64

	Regs Registers

	IsStopped     bool
	StoppedByUser bool
	IsAttached    bool
	PendingSignal int
}

// newThreadState returns a ThreadState with the "no step in progress, no
// disabled slot" sentinel values spec §3 requires.
func newThreadState(tid int) *ThreadState {
	return &ThreadState{
		ThreadID:             tid,
		CurrentBreakpointIdx: -1,
		DisabledWatchIdx:     -1,
	}
}

const swBreakpointIndexOffset = 1000

// swBreakpointDisabledIndex encodes a software breakpoint's monotonic ID
// into the +1000 offset range used by ThreadState.DisabledWatchIdx to
// disambiguate it from a hardware watchpoint index (spec §3).
func swBreakpointDisabledIndex(id int) int { return id + swBreakpointIndexOffset }

func isSWBreakpointDisabledIndex(idx int) bool { return idx >= swBreakpointIndexOffset }
