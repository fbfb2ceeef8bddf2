package dbg

import "fmt"

func (d *Debugger) findSWBreakpointByID(id int) *SWBreakpointSlot {
	d.swbpMu.Lock()
	defer d.swbpMu.Unlock()
	for _, s := range d.swbp {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Continue resumes a stopped thread (spec §4.5 "Continue"). A thread parked
// at a breakpoint it hasn't stepped over yet gets the deferred step-over
// first; the step's completion resumes it once done.
func (d *Debugger) Continue(threadID int) error {
	return d.enqueue(func() error {
		ts, ok := d.snapshotThread(threadID)
		if !ok {
			return ErrNotFound
		}
		if !ts.IsStopped {
			return fmt.Errorf("dbg: thread %d is not stopped", threadID)
		}

		if isSWBreakpointDisabledIndex(ts.DisabledWatchIdx) {
			id := ts.DisabledWatchIdx - swBreakpointIndexOffset
			slot := d.findSWBreakpointByID(id)
			if slot == nil {
				d.mutateThread(threadID, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
				return d.plainResume(threadID, ts.PendingSignal)
			}
			d.stepOverSWBreakpointContinue(threadID, slot.Addr, false)
			return nil
		}
		if ts.CurrentBreakpointIdx >= 0 {
			d.stepOverHWBreakpointContinue(threadID, ts.CurrentBreakpointIdx)
			return nil
		}
		return d.plainResume(threadID, ts.PendingSignal)
	})
}

func (d *Debugger) plainResume(threadID int, sig int) error {
	if err := d.backend.Resume(threadID, sig); err != nil {
		return fmt.Errorf("resuming thread %d: %w", threadID, err)
	}
	d.mutateThread(threadID, func(t *ThreadState) {
		t.IsStopped = false
		t.PendingSignal = 0
		t.StoppedByUser = false
	})
	if !d.IsInBreakState() {
		d.setState(StateRunning)
	}
	return nil
}

// SingleStep issues one instruction's worth of execution on threadID and
// arranges for the client to be notified when it completes (spec §4.5
// "SingleStep"). A software breakpoint at the current instruction pointer
// is transparently lifted for the step and reinstated by its completion
// handler; a matching hardware breakpoint slot is disabled the same way.
func (d *Debugger) SingleStep(threadID int) error {
	return d.enqueue(func() error {
		ts, ok := d.snapshotThread(threadID)
		if !ok {
			return ErrNotFound
		}
		if !ts.IsStopped {
			return fmt.Errorf("dbg: thread %d is not stopped", threadID)
		}

		var slot *SWBreakpointSlot
		if isSWBreakpointDisabledIndex(ts.DisabledWatchIdx) {
			slot = d.findSWBreakpointByID(ts.DisabledWatchIdx - swBreakpointIndexOffset)
			if slot == nil {
				// Removed while the thread sat on it: nothing to lift, so
				// step like any other instruction below.
				d.mutateThread(threadID, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
			}
		}
		if slot != nil {
			if err := d.unpatchTrap(slot.Addr, slot.Original); err != nil {
				d.logf(LogWarn, "restoring original bytes at %#x: %v", slot.Addr, err)
			}
			d.mutateThread(threadID, func(t *ThreadState) { t.SingleStepMode = StepSWBreakpointStep })
			if err := d.backend.SingleStep(threadID); err != nil {
				return fmt.Errorf("single-stepping thread %d: %w", threadID, err)
			}
			return nil
		}

		pc := ts.Regs.PCValue()
		if kind, _, idx, found := d.matchBreakpoint(pc); found && kind == BreakpointHardware {
			if err := d.backend.ClearHardwareBreakpoint(threadID, uint8(idx)); err != nil {
				d.logf(LogWarn, "disabling hw breakpoint %d on thread %d for step: %v", idx, threadID, err)
			}
			d.mutateThread(threadID, func(t *ThreadState) {
				t.CurrentBreakpointIdx = idx
				t.SingleStepMode = StepHWBreakpointStep
			})
			if err := d.backend.SingleStep(threadID); err != nil {
				return fmt.Errorf("single-stepping thread %d: %w", threadID, err)
			}
			return nil
		}

		d.mutateThread(threadID, func(t *ThreadState) { t.SingleStepMode = StepHWBreakpointStep })
		if err := d.backend.SingleStep(threadID); err != nil {
			return fmt.Errorf("single-stepping thread %d: %w", threadID, err)
		}
		return nil
	})
}

// ReadRegister returns the named register's value for a stopped thread
// (spec §4.5 "Read/Write Register"). The name-to-field mapping lives in
// registers.go, shared with WriteRegister below.
func (d *Debugger) ReadRegister(threadID int, name string) (uint64, error) {
	var value uint64
	err := d.enqueue(func() error {
		ts, ok := d.snapshotThread(threadID)
		if !ok {
			return ErrNotFound
		}
		if !ts.IsStopped {
			return fmt.Errorf("dbg: thread %d is not stopped", threadID)
		}
		v, err := ReadRegisterValue(&ts.Regs, name)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// WriteRegister sets the named register's value for a stopped thread.
func (d *Debugger) WriteRegister(threadID int, name string, value uint64) error {
	return d.enqueue(func() error {
		ts, ok := d.snapshotThread(threadID)
		if !ok {
			return ErrNotFound
		}
		if !ts.IsStopped {
			return fmt.Errorf("dbg: thread %d is not stopped", threadID)
		}
		regs := ts.Regs
		if err := WriteRegisterValue(&regs, name, value); err != nil {
			return err
		}
		if err := d.backend.SetRegisters(threadID, regs); err != nil {
			return fmt.Errorf("writing registers on thread %d: %w", threadID, err)
		}
		d.mutateThread(threadID, func(t *ThreadState) { t.Regs = regs })
		return nil
	})
}

// anyStoppedThread returns the id of a currently-stopped attached thread,
// used by ReadMemory to pick a thread to peek through (spec §4.5 "Read
// Memory").
func (d *Debugger) anyStoppedThread() (int, bool) {
	d.threadsMu.Lock()
	defer d.threadsMu.Unlock()
	for tid, ts := range d.threads {
		if ts.IsAttached && ts.IsStopped {
			return tid, true
		}
	}
	return 0, false
}
