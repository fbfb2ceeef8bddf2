package dbg

import (
	"errors"
	"fmt"
	"time"
)

// ErrCapacity is returned when a fixed-capacity hardware table has no free
// slot (spec §7, error taxonomy "Capacity").
var ErrCapacity = errors.New("dbg: no free hardware slot")

// ErrNotFound is returned by a remove operation that names an address with
// no active breakpoint/watchpoint.
var ErrNotFound = errors.New("dbg: no matching entry")

func clampWatchSize(size int) int {
	switch size {
	case 1, 2, 4, 8:
		return size
	default:
		return 4
	}
}

// SetWatchpoint allocates the lowest free hardware watchpoint slot,
// programs it on every attached thread inside a stop-the-world window, and
// records its metadata (spec §4.2 "Set").
func (d *Debugger) SetWatchpoint(addr uint64, size int, kind AccessType) (int, error) {
	size = clampWatchSize(size)
	var idx int
	err := d.enqueue(func() error {
		i, ok := d.allocateWatchpointSlot()
		if !ok {
			return ErrCapacity
		}
		idx = i

		var programErr error
		d.withStoppedWorld(0, func() {
			for _, tid := range d.attachedThreadIDs() {
				if werr := d.backend.WriteHardwareWatchpoint(tid, uint8(idx), addr, kind, size); werr != nil {
					programErr = fmt.Errorf("programming thread %d: %w", tid, werr)
					d.logf(LogError, "%v", programErr)
				}
			}
		})

		d.watchMu.Lock()
		slot := &d.watch[idx]
		slot.InUse = true
		slot.Addr = addr
		slot.Size = size
		slot.Type = kind
		slot.Removal.reset()
		d.watchMu.Unlock()

		// Partial failure: some threads may already carry the watchpoint.
		// Per spec §4.2 the operation still reports error; a later
		// reapply-watchpoints pass reconverges the stragglers.
		return programErr
	})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

func (d *Debugger) findWatchpoint(addr uint64) (int, bool) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	for i := range d.watch {
		if d.watch[i].InUse && d.watch[i].Addr == addr {
			return i, true
		}
	}
	return 0, false
}

// RemoveWatchpoint marks the slot removing, drains in-flight hit-handlers
// (bounded by watchpointDrainTimeout), clears it fleet-wide, and frees it
// (spec §4.2 "Remove").
func (d *Debugger) RemoveWatchpoint(addr uint64) error {
	return d.enqueue(func() error {
		idx, ok := d.findWatchpoint(addr)
		if !ok {
			return ErrNotFound
		}
		slot := &d.watch[idx]
		slot.Removal.beginRemoval()

		deadline := time.Now().Add(watchpointDrainTimeout)
		for slot.Removal.activeCount() > 0 && time.Now().Before(deadline) {
			// Pump the event loop ourselves: we are the debugger thread, and
			// active_handlers only drops when a watchpoint-restore
			// single-step completion is dispatched.
			if !d.pollOnce() {
				time.Sleep(time.Millisecond)
			}
		}
		if slot.Removal.activeCount() > 0 {
			d.logf(LogWarn, "watchpoint %#x removal: handlers did not drain within %s, proceeding anyway", addr, watchpointDrainTimeout)
		}

		d.withStoppedWorld(0, func() {
			for _, tid := range d.attachedThreadIDs() {
				if err := d.backend.ClearHardwareWatchpoint(tid, uint8(idx)); err != nil {
					d.logf(LogWarn, "clearing watchpoint on thread %d: %v", tid, err)
				}
			}
		})

		d.watchMu.Lock()
		slot.InUse = false
		slot.Addr = 0
		slot.Size = 0
		slot.Removal.reset()
		d.watchMu.Unlock()
		d.freeWatchpointSlot(idx)
		return nil
	})
}

// handleWatchpointHit is invoked from the event demultiplexer when
// backend.ActiveHardwareSlot identifies idx as the trapping slot on tid
// (spec §4.2 "Hit-handler").
func (d *Debugger) handleWatchpointHit(tid int, idx uint8) {
	slot := &d.watch[idx]
	if !slot.Removal.enterHandler() {
		// Removal is in progress: treat as spurious, resume silently.
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
		return
	}

	d.watchMu.Lock()
	addr, size, kind := slot.Addr, slot.Size, slot.Type
	d.watchMu.Unlock()

	if err := d.backend.ClearHardwareWatchpoint(tid, idx); err != nil {
		d.logf(LogWarn, "temporarily disabling watchpoint %d on thread %d: %v", idx, tid, err)
	}

	regs, rerr := d.backend.GetRegisters(tid)
	if rerr != nil {
		d.logf(LogWarn, "reading registers for watchpoint hit on thread %d: %v", tid, rerr)
	}

	d.mutateThread(tid, func(ts *ThreadState) {
		ts.SingleStepMode = StepWatchpointRestore
		ts.CurrentBreakpointIdx = int(idx)
		ts.Regs = regs
	})

	info := &ExceptionInfo{
		Arch:           d.backend.Arch(),
		Regs:           regs,
		ThreadID:       tid,
		ExceptionType:  ExceptionWatchpoint,
		MemoryAddress:  addr,
		SingleStepMode: StepWatchpointRestore,
	}
	_ = size
	_ = kind
	// Unlike the breakpoint hit-handler, the restore step here is not
	// gated by the client's response: it always runs so the slot can be
	// re-armed, regardless of whether the thread ends up parked in break
	// state (spec §4.2 "Hit-handler").
	d.notifyBreak(tid, info)

	if err := d.backend.SingleStep(tid); err != nil {
		d.logf(LogError, "single-stepping thread %d past watchpoint: %v", tid, err)
	}
}

// completeWatchpointRestore runs when the single-step issued by
// handleWatchpointHit reports its trap: it decrements active_handlers and
// re-arms the watchpoint fleet-wide (spec §4.2 "Watchpoint-restore
// completion").
func (d *Debugger) completeWatchpointRestore(tid int, ts *ThreadState) {
	idx := uint8(ts.CurrentBreakpointIdx)
	d.mutateThread(tid, func(t *ThreadState) {
		t.SingleStepMode = StepNone
		t.CurrentBreakpointIdx = -1
	})

	d.watch[idx].Removal.leaveHandler()

	if d.watch[idx].InUse && !d.watch[idx].Removal.isRemoving() {
		d.reapplyWatchpoints(tid)
	}

	if !d.getStoppedByBreak(tid) {
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
	}
}

// reapplyWatchpoints stops the world (except excludeTid, already known
// stopped as the thread whose restore step just completed) and reprograms
// every non-removing watchpoint slot on every attached thread, covering
// both that thread and any thread created in the meantime (spec §4.7
// "Reapply-watchpoints").
func (d *Debugger) reapplyWatchpoints(excludeTid int) {
	type snapshot struct {
		addr uint64
		size int
		kind AccessType
	}
	d.withStoppedWorld(excludeTid, func() {
		d.watchMu.Lock()
		live := make(map[int]snapshot)
		for idx := range d.watch {
			s := &d.watch[idx]
			if s.InUse && !s.Removal.isRemoving() {
				live[idx] = snapshot{addr: s.Addr, size: s.Size, kind: s.Type}
			}
		}
		d.watchMu.Unlock()
		for idx, s := range live {
			for _, tid := range d.attachedThreadIDs() {
				if err := d.backend.WriteHardwareWatchpoint(tid, uint8(idx), s.addr, s.kind, s.size); err != nil {
					d.logf(LogWarn, "reapplying watchpoint %d on thread %d: %v", idx, tid, err)
				}
			}
		}
	})
}
