package dbg

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/nullpointer-dev/dbgcore/internal/logflags"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/arch"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/native"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// Logger is the client-installed log upcall (spec §6, §8 upcall interface).
type Logger func(level LogLevel, msg string)

// ExceptionHandler is the client-installed on_exception upcall. Returning
// true enters break state and stops the thread for the client to inspect;
// false silently continues past the exception (spec §4.3 "Client response
// semantics").
type ExceptionHandler func(info *ExceptionInfo) bool

// Debugger is one instance of the engine, attached (or about to attach) to
// a single target process (spec §3, "Debugger").
type Debugger struct {
	backend native.Backend
	pid     int

	queue   chan *request
	stopCh  chan struct{}
	closed  chan struct{}
	closeOnce sync.Once
	runOnce   sync.Once
	wg      sync.WaitGroup

	threadsMu sync.Mutex
	threads   map[int]*ThreadState

	watchMu sync.Mutex
	watch   []WatchpointSlot

	hwbpMu sync.Mutex
	hwbp   []HWBreakpointSlot

	// physMu/physInUse model x86_64's single shared DR0-DR3 bank: hardware
	// watchpoints and hardware execution breakpoints are the same physical
	// registers there, so both tables allocate logical indices from this
	// pool when the backend is x86_64 (arch/amd64.go). Unused on ARM64,
	// whose DBGWCR and DBGBCR register files are physically independent.
	physMu    sync.Mutex
	physInUse [4]bool

	swbpMu   sync.Mutex
	swbp     map[uint64]*SWBreakpointSlot
	nextSWID int

	signals *signalTable

	stateMu sync.Mutex
	state   DebugState

	manualStopMu      sync.Mutex
	manualStopPending bool

	// stopRequestMu/stopRequested track threads for which stopWorld issued
	// an interrupt and is waiting on its stop, so the event demultiplexer's
	// interrupt-stop case (events.go item 2) can consume that specific
	// stop directly instead of resuming it generically (spec §4.7 "Stop").
	stopRequestMu sync.Mutex
	stopRequested map[int]bool

	log         Logger
	onException ExceptionHandler

	memCache *lru.Cache

	l *logrus.Entry
}

// maxHardwareWatchpoints and maxHardwareBreakpoints report the fixed table
// capacity for the backend's architecture (spec §3).
func maxHardwareWatchpoints(a proto.Arch) int {
	if a == proto.ArchARM64 {
		return arch.ARM64MaxHardwareWatchpoints
	}
	return arch.AMD64MaxHardwareWatchpoints
}

func maxHardwareBreakpoints(a proto.Arch) int {
	if a == proto.ArchARM64 {
		return arch.ARM64MaxHardwareBreakpoints
	}
	return arch.AMD64MaxHardwareBreakpoints
}

// allocatePhysicalSlot hands out the lowest free index of the shared
// amd64 DR0-DR3 bank.
func (d *Debugger) allocatePhysicalSlot() (int, bool) {
	d.physMu.Lock()
	defer d.physMu.Unlock()
	for i := range d.physInUse {
		if !d.physInUse[i] {
			d.physInUse[i] = true
			return i, true
		}
	}
	return 0, false
}

func (d *Debugger) freePhysicalSlot(idx int) {
	d.physMu.Lock()
	d.physInUse[idx] = false
	d.physMu.Unlock()
}

// allocateWatchpointSlot returns the lowest free watchpoint table index. On
// x86_64 it draws from the shared physical pool also used by hardware
// breakpoints; on ARM64 the watchpoint table is independent.
func (d *Debugger) allocateWatchpointSlot() (int, bool) {
	if d.backend.Arch() == proto.ArchX86_64 {
		return d.allocatePhysicalSlot()
	}
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	for i := range d.watch {
		if !d.watch[i].InUse {
			return i, true
		}
	}
	return 0, false
}

func (d *Debugger) freeWatchpointSlot(idx int) {
	if d.backend.Arch() == proto.ArchX86_64 {
		d.freePhysicalSlot(idx)
	}
}

// allocateHWBreakpointSlot mirrors allocateWatchpointSlot for the
// breakpoint table.
func (d *Debugger) allocateHWBreakpointSlot() (int, bool) {
	if d.backend.Arch() == proto.ArchX86_64 {
		return d.allocatePhysicalSlot()
	}
	d.hwbpMu.Lock()
	defer d.hwbpMu.Unlock()
	for i := range d.hwbp {
		if !d.hwbp[i].InUse {
			return i, true
		}
	}
	return 0, false
}

func (d *Debugger) freeHWBreakpointSlot(idx int) {
	if d.backend.Arch() == proto.ArchX86_64 {
		d.freePhysicalSlot(idx)
	}
}

// New wraps an already-constructed platform backend (spec §3 "created for
// a PID, initialized"). Use Attach or Spawn (spawn.go) to bring it to life;
// New alone only allocates tables and wires the upcalls.
func New(pid int, backend native.Backend, log Logger, onException ExceptionHandler) *Debugger {
	memCache, _ := lru.New(4096)
	d := &Debugger{
		backend:       backend,
		pid:           pid,
		queue:         make(chan *request),
		stopCh:        make(chan struct{}),
		closed:        make(chan struct{}),
		threads:       make(map[int]*ThreadState),
		watch:         make([]WatchpointSlot, maxHardwareWatchpoints(backend.Arch())),
		hwbp:          make([]HWBreakpointSlot, maxHardwareBreakpoints(backend.Arch())),
		swbp:          make(map[uint64]*SWBreakpointSlot),
		stopRequested: make(map[int]bool),
		signals:       newSignalTable(),
		log:           log,
		onException:   onException,
		memCache:      memCache,
		l:             logflags.DebuggerLogger(),
	}
	return d
}

func (d *Debugger) logf(level LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if d.log != nil {
		d.log(level, msg)
	}
	if logflags.Debugger() {
		d.l.Debug(msg)
	}
}

// NewAttached constructs the platform-appropriate backend for pid, wraps it
// in a Debugger, and attaches. It is the convenience path a client with no
// existing native.Backend takes; a client that already has one (spec.md's
// engine API is otherwise backend-agnostic) can call New and Attach
// directly instead.
func NewAttached(pid int, log Logger, onException ExceptionHandler) (*Debugger, error) {
	backend, err := newBackendForPID(pid)
	if err != nil {
		return nil, err
	}
	d := New(pid, backend, log, onException)
	if err := d.Attach(); err != nil {
		return nil, err
	}
	return d, nil
}

// Attach enumerates the target's existing threads and seizes each one
// (spec §4.6). It launches the debugger thread if it is not already
// running.
func (d *Debugger) Attach() error {
	d.ensureRunning()
	return d.enqueue(func() error {
		tids, err := d.backend.Threads()
		if err != nil {
			return fmt.Errorf("enumerating threads: %w", err)
		}
		for _, tid := range tids {
			if err := d.backend.Seize(tid); err != nil {
				return fmt.Errorf("seizing thread %d: %w", tid, err)
			}
			d.addThread(tid, true)
		}
		d.signals.syncFromGlobal()
		return nil
	})
}

func (d *Debugger) ensureRunning() {
	select {
	case <-d.stopCh:
		return
	default:
	}
	d.runOnce.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run()
		}()
	})
}

func (d *Debugger) addThread(tid int, attached bool) *ThreadState {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	ts, ok := d.threads[tid]
	if !ok {
		ts = newThreadState(tid)
		d.threads[tid] = ts
	}
	ts.IsAttached = attached
	return ts
}

func (d *Debugger) getThread(tid int) *ThreadState {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	return d.threads[tid]
}

func (d *Debugger) removeThread(tid int) {
	d.threadsMu.Lock()
	delete(d.threads, tid)
	d.threadsMu.Unlock()
}

// mutateThread runs fn with tid's state locked, the only sanctioned way to
// change a ThreadState's fields (spec §5 "the thread-state map is mutated
// under its own mutex").
func (d *Debugger) mutateThread(tid int, fn func(ts *ThreadState)) bool {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	ts, ok := d.threads[tid]
	if !ok {
		return false
	}
	fn(ts)
	return true
}

// snapshotThread copies out tid's state under lock.
func (d *Debugger) snapshotThread(tid int) (ThreadState, bool) {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	ts, ok := d.threads[tid]
	if !ok {
		return ThreadState{}, false
	}
	return *ts, true
}

func (d *Debugger) attachedThreadIDs() []int {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	out := make([]int, 0, len(d.threads))
	for tid, ts := range d.threads {
		if ts.IsAttached {
			out = append(out, tid)
		}
	}
	return out
}

func (d *Debugger) setState(s DebugState) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// GetDebugState returns the debugger-wide execution state (spec §6).
func (d *Debugger) GetDebugState() DebugState {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

// IsInBreakState reports whether any attached thread is currently stopped
// awaiting a client decision (spec §6).
func (d *Debugger) IsInBreakState() bool {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	for _, ts := range d.threads {
		if ts.IsStopped {
			return true
		}
	}
	return false
}

// Detach signals the debugger thread to exit; once it notices, it detaches
// from every attached thread and joins (spec §4.6 "Detach").
func (d *Debugger) Detach() error {
	err := d.enqueue(func() error {
		for _, tid := range d.attachedThreadIDs() {
			if derr := d.backend.Detach(tid); derr != nil {
				d.logf(LogWarn, "detach thread %d: %v", tid, derr)
			}
		}
		return nil
	})
	d.closeOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	close(d.closed)
	return err
}

// Destroy is the terminal lifecycle operation (spec §3 "destroyed"): it
// detaches (best effort) and releases resources. Calling Destroy more than
// once is safe.
func (d *Debugger) Destroy() error {
	select {
	case <-d.closed:
		return nil
	default:
	}
	return d.Detach()
}
