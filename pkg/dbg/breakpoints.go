package dbg

import (
	"fmt"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// swTrapWidth is the length of the trap-instruction prefix patched into the
// code stream: one byte for x86_64 INT3, four for ARM64 BRK #0 (spec §4.3
// "Software breakpoint set").
func swTrapWidth(a proto.Arch) int {
	if a == proto.ArchARM64 {
		return 4
	}
	return 1
}

// swTrapBytes returns the little-endian trap encoding for the architecture.
func swTrapBytes(a proto.Arch) []byte {
	if a == proto.ArchARM64 {
		return []byte{0x00, 0x00, 0x20, 0xd4} // BRK #0
	}
	return []byte{0xcc} // INT3
}

func wordToBytes(w uint64) [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(w)
		w >>= 8
	}
	return b
}

func bytesToWord(b [8]byte) uint64 {
	var w uint64
	for i := 7; i >= 0; i-- {
		w = w<<8 | uint64(b[i])
	}
	return w
}

// patchTrap peeks the word at addr, saves the original trap-width prefix,
// merges in the trap instruction, and pokes it back.
func (d *Debugger) patchTrap(addr uint64) (original []byte, err error) {
	word, err := d.backend.PeekWord(addr)
	if err != nil {
		return nil, fmt.Errorf("reading original bytes at %#x: %w", addr, err)
	}
	buf := wordToBytes(word)
	width := swTrapWidth(d.backend.Arch())
	original = append([]byte(nil), buf[:width]...)
	trap := swTrapBytes(d.backend.Arch())
	copy(buf[:width], trap)
	if err := d.backend.PokeWord(addr, bytesToWord(buf)); err != nil {
		return nil, fmt.Errorf("patching trap at %#x: %w", addr, err)
	}
	d.InvalidateMemoryCache(addr&^7, 8)
	return original, nil
}

// unpatchTrap writes original back over the trap-width prefix at addr,
// leaving the rest of the word untouched.
func (d *Debugger) unpatchTrap(addr uint64, original []byte) error {
	word, err := d.backend.PeekWord(addr)
	if err != nil {
		return fmt.Errorf("reading word at %#x: %w", addr, err)
	}
	buf := wordToBytes(word)
	copy(buf[:len(original)], original)
	if err := d.backend.PokeWord(addr, bytesToWord(buf)); err != nil {
		return err
	}
	d.InvalidateMemoryCache(addr&^7, 8)
	return nil
}

// SetBreakpoint installs a hardware or software breakpoint (spec §4.3
// "Common API — Set"). hitCount=0 is wait-mode; hitCount>0 is trace-mode.
func (d *Debugger) SetBreakpoint(addr uint64, hitCount uint64, kind BreakpointKind) error {
	return d.enqueue(func() error {
		if kind == BreakpointHardware {
			return d.setHWBreakpointLocked(addr, hitCount)
		}
		return d.setSWBreakpointLocked(addr, hitCount)
	})
}

func (d *Debugger) setHWBreakpointLocked(addr uint64, hitCount uint64) error {
	idx, ok := d.allocateHWBreakpointSlot()
	if !ok {
		return ErrCapacity
	}
	var programErr error
	d.withStoppedWorld(0, func() {
		for _, tid := range d.attachedThreadIDs() {
			if err := d.backend.WriteHardwareBreakpoint(tid, uint8(idx), addr); err != nil {
				programErr = fmt.Errorf("programming thread %d: %w", tid, err)
				d.logf(LogError, "%v", programErr)
			}
		}
	})
	d.hwbpMu.Lock()
	slot := &d.hwbp[idx]
	slot.InUse = true
	slot.Addr = addr
	slot.HitCount = 0
	slot.TargetHits = hitCount
	slot.Removal.reset()
	d.hwbpMu.Unlock()
	return programErr
}

func (d *Debugger) setSWBreakpointLocked(addr uint64, hitCount uint64) error {
	d.swbpMu.Lock()
	if _, exists := d.swbp[addr]; exists {
		d.swbpMu.Unlock()
		return fmt.Errorf("dbg: software breakpoint already set at %#x", addr)
	}
	d.nextSWID++
	entry := &SWBreakpointSlot{ID: d.nextSWID, Addr: addr, TargetHits: hitCount}
	d.swbp[addr] = entry
	d.swbpMu.Unlock()

	var setupErr error
	d.withStoppedWorld(0, func() {
		original, err := d.patchTrap(addr)
		if err != nil {
			setupErr = err
			return
		}
		entry.Original = original
		entry.InUse = true
	})
	if setupErr != nil {
		d.swbpMu.Lock()
		delete(d.swbp, addr)
		d.swbpMu.Unlock()
		return setupErr
	}
	return nil
}

// GetSoftwareOriginalBytes returns the pre-patch bytes at addr, used by a
// disassembler to reconstruct the real instruction for display (spec §4.3).
func (d *Debugger) GetSoftwareOriginalBytes(addr uint64) ([]byte, error) {
	d.swbpMu.Lock()
	defer d.swbpMu.Unlock()
	slot, ok := d.swbp[addr]
	if !ok || !slot.InUse {
		return nil, ErrNotFound
	}
	return append([]byte(nil), slot.Original...), nil
}

// RemoveBreakpoint clears whichever kind of breakpoint (hardware or
// software) is installed at addr (spec §4.3 "Common API — Remove").
func (d *Debugger) RemoveBreakpoint(addr uint64) error {
	return d.enqueue(func() error {
		if idx, ok := d.findHWBreakpoint(addr); ok {
			d.removeHWBreakpointLocked(idx, 0)
			return nil
		}
		d.swbpMu.Lock()
		_, ok := d.swbp[addr]
		d.swbpMu.Unlock()
		if !ok {
			return ErrNotFound
		}
		return d.removeSWBreakpointLocked(addr)
	})
}

func (d *Debugger) findHWBreakpoint(addr uint64) (int, bool) {
	d.hwbpMu.Lock()
	defer d.hwbpMu.Unlock()
	for i := range d.hwbp {
		if d.hwbp[i].InUse && d.hwbp[i].Addr == addr {
			return i, true
		}
	}
	return 0, false
}

// removeHWBreakpointLocked clears slot idx fleet-wide and frees it. exclude
// (0 = none) names a thread already known to be stopped, letting a caller
// running inside that thread's event-dispatch skip re-interrupting it.
func (d *Debugger) removeHWBreakpointLocked(idx int, exclude int) {
	d.withStoppedWorld(exclude, func() {
		for _, tid := range d.attachedThreadIDs() {
			if err := d.backend.ClearHardwareBreakpoint(tid, uint8(idx)); err != nil {
				d.logf(LogWarn, "clearing hw breakpoint %d on thread %d: %v", idx, tid, err)
			}
		}
	})
	d.hwbpMu.Lock()
	slot := &d.hwbp[idx]
	slot.InUse = false
	slot.Addr = 0
	slot.HitCount = 0
	slot.TargetHits = 0
	slot.Removal.reset()
	d.hwbpMu.Unlock()
	d.freeHWBreakpointSlot(idx)
}

func (d *Debugger) removeSWBreakpointLocked(addr uint64) error {
	d.swbpMu.Lock()
	slot, ok := d.swbp[addr]
	d.swbpMu.Unlock()
	if !ok {
		return ErrNotFound
	}
	var unpatchErr error
	d.withStoppedWorld(0, func() {
		if slot.InUse {
			if err := d.unpatchTrap(addr, slot.Original); err != nil {
				unpatchErr = err
				d.logf(LogWarn, "removing sw breakpoint at %#x: %v", addr, err)
			}
		}
	})
	d.swbpMu.Lock()
	delete(d.swbp, addr)
	d.swbpMu.Unlock()
	return unpatchErr
}

// matchBreakpoint checks whether pc names a known breakpoint, hardware or
// software, applying the x86_64 INT3 -1 tolerance (spec §4.4 item 5).
func (d *Debugger) matchBreakpoint(pc uint64) (kind BreakpointKind, key uint64, idx int, found bool) {
	d.hwbpMu.Lock()
	for i := range d.hwbp {
		if d.hwbp[i].InUse && d.hwbp[i].Addr == pc {
			d.hwbpMu.Unlock()
			return BreakpointHardware, pc, i, true
		}
	}
	d.hwbpMu.Unlock()

	d.swbpMu.Lock()
	defer d.swbpMu.Unlock()
	if s, ok := d.swbp[pc]; ok && s.InUse {
		return BreakpointSoftware, pc, s.ID, true
	}
	if d.backend.Arch() == proto.ArchX86_64 {
		if s, ok := d.swbp[pc-1]; ok && s.InUse {
			return BreakpointSoftware, pc - 1, s.ID, true
		}
	}
	return 0, 0, 0, false
}

// handleHWBreakpointHit is the hardware half of spec §4.3's "Hit-handler".
// It disables the slot on this thread only, notifies the client in
// wait-mode, and either parks the thread (client asked to break) or steps
// over transparently right away (client declined, or this is trace-mode).
func (d *Debugger) handleHWBreakpointHit(tid int, idx int) {
	slot := &d.hwbp[idx]
	if !slot.Removal.enterHandler() {
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
		return
	}

	d.hwbpMu.Lock()
	slot.HitCount++
	addr := slot.Addr
	traceMode := slot.TargetHits > 0
	d.hwbpMu.Unlock()

	if err := d.backend.ClearHardwareBreakpoint(tid, uint8(idx)); err != nil {
		d.logf(LogWarn, "temporarily disabling hw breakpoint %d on thread %d: %v", idx, tid, err)
	}

	regs, err := d.backend.GetRegisters(tid)
	if err != nil {
		d.logf(LogWarn, "reading registers for hw breakpoint hit on thread %d: %v", tid, err)
	}
	d.mutateThread(tid, func(ts *ThreadState) {
		ts.CurrentBreakpointIdx = idx
		ts.Regs = regs
	})

	if traceMode {
		d.stepOverHWBreakpointContinue(tid, idx)
		return
	}

	info := &ExceptionInfo{
		Arch: d.backend.Arch(), Regs: regs, ThreadID: tid,
		ExceptionType: ExceptionBreakpoint, MemoryAddress: addr,
	}
	if d.notifyBreak(tid, info) {
		// Client wants a break state. Leave the slot disabled on this
		// thread and CurrentBreakpointIdx set; Continue/SingleStep (exec.go)
		// perform the deferred step-over when the client next acts.
		return
	}
	d.stepOverHWBreakpointContinue(tid, idx)
}

// stepOverHWBreakpointContinue issues the disable-step-reenable single-step
// in "-continue" mode, meaning its completion resumes the thread rather
// than leaving it stopped (spec §4.3 "Step-over mechanics — Hardware").
func (d *Debugger) stepOverHWBreakpointContinue(tid int, idx int) {
	d.mutateThread(tid, func(ts *ThreadState) {
		ts.SingleStepMode = StepHWBreakpointContinue
		ts.CurrentBreakpointIdx = idx
	})
	if err := d.backend.SingleStep(tid); err != nil {
		d.logf(LogError, "single-stepping thread %d past hw breakpoint: %v", tid, err)
	}
}

// completeHWBreakpointStep runs when a hardware-breakpoint single-step's
// trap arrives, dispatched from events.go (spec §4.3 "Trace-mode
// completion", "Step-over mechanics").
func (d *Debugger) completeHWBreakpointStep(tid int, ts *ThreadState) {
	idx := ts.CurrentBreakpointIdx
	mode := ts.SingleStepMode
	d.mutateThread(tid, func(t *ThreadState) {
		t.SingleStepMode = StepNone
	})

	if idx < 0 || idx >= len(d.hwbp) {
		// Not stepping past a parked breakpoint: this is a plain client
		// SingleStep() issued while the thread wasn't sitting on one
		// (exec.go's generic branch leaves CurrentBreakpointIdx at -1). It
		// still owes the client an ExceptionSingleStep notification and a
		// parked thread, never a silent resume.
		if mode == StepHWBreakpointStep {
			d.mutateThread(tid, func(t *ThreadState) { t.CurrentBreakpointIdx = -1 })
			d.notifySingleStepComplete(tid)
			return
		}
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false; t.CurrentBreakpointIdx = -1 })
		return
	}
	slot := &d.hwbp[idx]

	if mode == StepHWBreakpointStep {
		// Explicit client SingleStep() over a parked breakpoint: re-enable,
		// notify, and stop (exec.go sets this mode; never set at hit time).
		if err := d.backend.WriteHardwareBreakpoint(tid, uint8(idx), slot.Addr); err != nil {
			d.logf(LogWarn, "re-enabling hw breakpoint %d on thread %d: %v", idx, tid, err)
		}
		slot.Removal.leaveHandler()
		d.mutateThread(tid, func(t *ThreadState) { t.CurrentBreakpointIdx = -1 })
		d.notifySingleStepComplete(tid)
		return
	}

	d.hwbpMu.Lock()
	traceMode := slot.TargetHits > 0
	d.hwbpMu.Unlock()

	if traceMode {
		d.hwbpMu.Lock()
		slot.HitCount++
		reached := slot.HitCount >= slot.TargetHits
		d.hwbpMu.Unlock()
		if reached {
			slot.Removal.leaveHandler()
			d.mutateThread(tid, func(t *ThreadState) { t.CurrentBreakpointIdx = -1 })
			d.removeHWBreakpointLocked(idx, tid)
			_ = d.backend.Resume(tid, 0)
			d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
			return
		}
		d.mutateThread(tid, func(t *ThreadState) { t.SingleStepMode = StepHWBreakpointContinue })
		if err := d.backend.SingleStep(tid); err != nil {
			d.logf(LogError, "continuing trace-mode hw breakpoint %d on thread %d: %v", idx, tid, err)
		}
		return
	}

	// One-shot step-over: either the hit-handler's silent-continue path or
	// an explicit client Continue() call (exec.go). Re-enable and resume.
	if err := d.backend.WriteHardwareBreakpoint(tid, uint8(idx), slot.Addr); err != nil {
		d.logf(LogWarn, "re-enabling hw breakpoint %d on thread %d: %v", idx, tid, err)
	}
	slot.Removal.leaveHandler()
	d.mutateThread(tid, func(t *ThreadState) { t.CurrentBreakpointIdx = -1 })
	_ = d.backend.Resume(tid, 0)
	d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
}

// handleSWBreakpointHit is the software half of spec §4.3's "Hit-handler".
func (d *Debugger) handleSWBreakpointHit(tid int, key uint64) {
	d.swbpMu.Lock()
	slot, ok := d.swbp[key]
	d.swbpMu.Unlock()
	if !ok {
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(ts *ThreadState) { ts.IsStopped = false })
		return
	}

	regs, err := d.backend.GetRegisters(tid)
	if err != nil {
		d.logf(LogWarn, "reading registers for sw breakpoint hit on thread %d: %v", tid, err)
	}
	if d.backend.Arch() == proto.ArchX86_64 {
		regs.SetPCValue(key)
		if err := d.backend.SetRegisters(tid, regs); err != nil {
			d.logf(LogWarn, "rewinding pc after int3 on thread %d: %v", tid, err)
		}
	}

	d.swbpMu.Lock()
	slot.HitCount++
	traceMode := slot.TargetHits > 0
	id := slot.ID
	d.swbpMu.Unlock()

	d.mutateThread(tid, func(ts *ThreadState) {
		ts.DisabledWatchIdx = swBreakpointDisabledIndex(id)
		ts.Regs = regs
	})

	if traceMode {
		d.stepOverSWBreakpointContinue(tid, key, false)
		return
	}

	info := &ExceptionInfo{
		Arch: d.backend.Arch(), Regs: regs, ThreadID: tid,
		ExceptionType: ExceptionBreakpoint, MemoryAddress: key,
	}
	if d.notifyBreak(tid, info) {
		// Deferred: bytes stay patched, thread stays parked until the
		// client calls Continue/SingleStep.
		return
	}
	d.stepOverSWBreakpointContinue(tid, key, false)
}

// stepOverSWBreakpointContinue restores original bytes and single-steps in
// "-continue" mode (spec §4.3 "Step-over mechanics — Software"). alreadyRestored
// lets a caller that already put the original bytes back (none currently do)
// skip a redundant unpatch.
func (d *Debugger) stepOverSWBreakpointContinue(tid int, addr uint64, alreadyRestored bool) {
	d.swbpMu.Lock()
	slot, ok := d.swbp[addr]
	d.swbpMu.Unlock()
	if !ok {
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false; t.DisabledWatchIdx = -1 })
		return
	}
	if !alreadyRestored {
		if err := d.unpatchTrap(addr, slot.Original); err != nil {
			d.logf(LogWarn, "restoring original bytes at %#x: %v", addr, err)
		}
	}
	d.mutateThread(tid, func(ts *ThreadState) {
		ts.SingleStepMode = StepSWBreakpointContinue
		ts.DisabledWatchIdx = swBreakpointDisabledIndex(slot.ID)
	})
	if err := d.backend.SingleStep(tid); err != nil {
		d.logf(LogError, "single-stepping thread %d past sw breakpoint: %v", tid, err)
	}
}

// completeSWBreakpointStep runs when a software-breakpoint single-step's
// trap arrives (spec §4.3 "Trace-mode completion", "Step-over mechanics").
func (d *Debugger) completeSWBreakpointStep(tid int, ts *ThreadState) {
	mode := ts.SingleStepMode
	id := ts.DisabledWatchIdx - swBreakpointIndexOffset
	d.mutateThread(tid, func(t *ThreadState) { t.SingleStepMode = StepNone })

	d.swbpMu.Lock()
	var slot *SWBreakpointSlot
	for _, s := range d.swbp {
		if s.ID == id {
			slot = s
			break
		}
	}
	d.swbpMu.Unlock()
	if slot == nil {
		d.mutateThread(tid, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
		_ = d.backend.Resume(tid, 0)
		d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
		return
	}

	if mode == StepSWBreakpointStep {
		if err := d.repatchTrap(slot); err != nil {
			d.logf(LogWarn, "re-patching trap at %#x: %v", slot.Addr, err)
		}
		d.mutateThread(tid, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
		d.notifySingleStepComplete(tid)
		return
	}

	d.swbpMu.Lock()
	traceMode := slot.TargetHits > 0
	d.swbpMu.Unlock()

	if traceMode {
		d.swbpMu.Lock()
		slot.HitCount++
		reached := slot.HitCount >= slot.TargetHits
		addr := slot.Addr
		d.swbpMu.Unlock()
		if reached {
			d.mutateThread(tid, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
			// Bytes are already original (never re-patched during a trace
			// run); auto-remove just drops the bookkeeping entry.
			d.swbpMu.Lock()
			delete(d.swbp, addr)
			d.swbpMu.Unlock()
			_ = d.backend.Resume(tid, 0)
			d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
			return
		}
		d.mutateThread(tid, func(t *ThreadState) { t.SingleStepMode = StepSWBreakpointContinue })
		if err := d.backend.SingleStep(tid); err != nil {
			d.logf(LogError, "continuing trace-mode sw breakpoint at %#x on thread %d: %v", addr, tid, err)
		}
		return
	}

	// One-shot step-over (silent-continue hit path, or explicit Continue()):
	// re-patch and resume unconditionally.
	if err := d.repatchTrap(slot); err != nil {
		d.logf(LogWarn, "re-patching trap at %#x: %v", slot.Addr, err)
	}
	d.mutateThread(tid, func(t *ThreadState) { t.DisabledWatchIdx = -1 })
	_ = d.backend.Resume(tid, 0)
	d.mutateThread(tid, func(t *ThreadState) { t.IsStopped = false })
}

func (d *Debugger) repatchTrap(slot *SWBreakpointSlot) error {
	word, err := d.backend.PeekWord(slot.Addr)
	if err != nil {
		return err
	}
	buf := wordToBytes(word)
	width := swTrapWidth(d.backend.Arch())
	copy(buf[:width], swTrapBytes(d.backend.Arch()))
	if err := d.backend.PokeWord(slot.Addr, bytesToWord(buf)); err != nil {
		return err
	}
	d.InvalidateMemoryCache(slot.Addr&^7, 8)
	return nil
}
