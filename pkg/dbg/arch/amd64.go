// Package arch encodes and decodes the per-architecture hardware debug
// register control words for watchpoints and execution breakpoints (spec
// §4.2 "Access-type encoding").
package arch

import (
	"errors"
	"fmt"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// AMD64DebugRegisters is a decode/encode view over the x86_64 DR0-DR7
// register set, grounded on the Intel SDM Vol. 3B §17.2 layout. Callers
// supply pointers into whatever raw storage PTRACE_PEEKUSR/POKEUSR (or the
// Mach thread-state equivalent) filled in; SetWatchpoint/ClearWatchpoint
// mutate through them and set Dirty when the caller must write back.
type AMD64DebugRegisters struct {
	addr       [4]*uint64
	dr6, dr7   *uint64
	Dirty      bool
}

// NewAMD64DebugRegisters wraps pointers to a thread's DR0-DR3, DR6 and DR7
// words.
func NewAMD64DebugRegisters(dr0, dr1, dr2, dr3, dr6, dr7 *uint64) *AMD64DebugRegisters {
	return &AMD64DebugRegisters{addr: [4]*uint64{dr0, dr1, dr2, dr3}, dr6: dr6, dr7: dr7}
}

func amd64EnableBit(idx uint8) uint64    { return uint64(idx) * 2 }
func amd64LenRWOffset(idx uint8) uint64  { return 16 + uint64(idx)*4 }

func (d *AMD64DebugRegisters) decode(idx uint8) (addr uint64, read, write bool, size int) {
	if *d.dr7&(1<<amd64EnableBit(idx)) == 0 {
		return 0, false, false, 0
	}
	addr = *d.addr[idx]
	lenrw := (*d.dr7 >> amd64LenRWOffset(idx)) & 0xf
	write = lenrw&0x1 != 0
	read = lenrw&0x2 != 0
	switch lenrw >> 2 {
	case 0x0:
		size = 1
	case 0x1:
		size = 2
	case 0x2:
		size = 8
	case 0x3:
		size = 4
	}
	return addr, read, write, size
}

// EncodeAccess maps the engine's AccessType/size pair onto DR7's
// read/write bits and length field. Sizes outside {1,2,4,8} clamp to 4
// (spec §4.2, §8 boundary behavior).
func EncodeAccess(kind proto.AccessType, size int) (read, write bool, clamped int) {
	switch kind {
	case proto.AccessRead:
		read = true
	case proto.AccessWrite:
		write = true
	case proto.AccessReadWrite:
		read, write = true, true
	}
	switch size {
	case 1, 2, 4, 8:
		clamped = size
	default:
		clamped = 4
	}
	return
}

// SetWatchpoint programs hardware slot idx (0..3) with addr/read/write/size.
// If the slot is already programmed identically this is a no-op; if it is
// programmed differently it is a capacity/conflict error.
func (d *AMD64DebugRegisters) SetWatchpoint(idx uint8, addr uint64, read, write bool, size int) error {
	if int(idx) >= len(d.addr) {
		return fmt.Errorf("hardware debug registers exhausted")
	}
	curAddr, curRead, curWrite, curSize := d.decode(idx)
	if curAddr != 0 {
		if curAddr != addr || curRead != read || curWrite != write || curSize != size {
			return fmt.Errorf("hardware slot %d already in use at %#x", idx, curAddr)
		}
		return nil
	}
	if read && !write {
		return errors.New("read-only hardware watchpoints are not supported on x86_64")
	}
	*d.addr[idx] = addr
	var lenrw uint64
	if write {
		lenrw |= 0x1
	}
	if read {
		lenrw |= 0x2
	}
	switch size {
	case 1:
	case 2:
		lenrw |= 0x1 << 2
	case 4:
		lenrw |= 0x3 << 2
	case 8:
		lenrw |= 0x2 << 2
	default:
		return fmt.Errorf("unsupported watchpoint size %d", size)
	}
	*d.dr7 &^= 0xf << amd64LenRWOffset(idx)
	*d.dr7 |= lenrw << amd64LenRWOffset(idx)
	*d.dr7 |= 1 << amd64EnableBit(idx)
	d.Dirty = true
	return nil
}

// SetBreakpoint programs hardware slot idx as an execution breakpoint
// (DR7 RW=00b), which the Intel SDM requires pairing with LEN=00b.
// Execution breakpoints share the same four physical slots as data
// watchpoints on x86_64; callers must not double-allocate a slot to both.
func (d *AMD64DebugRegisters) SetBreakpoint(idx uint8, addr uint64) error {
	if int(idx) >= len(d.addr) {
		return fmt.Errorf("hardware debug registers exhausted")
	}
	*d.addr[idx] = addr
	*d.dr7 &^= 0xf << amd64LenRWOffset(idx)
	*d.dr7 |= 1 << amd64EnableBit(idx)
	d.Dirty = true
	return nil
}

// ClearWatchpoint disables hardware slot idx.
func (d *AMD64DebugRegisters) ClearWatchpoint(idx uint8) {
	if *d.dr7&(1<<amd64EnableBit(idx)) == 0 {
		return
	}
	*d.dr7 &^= 1 << amd64EnableBit(idx)
	*d.addr[idx] = 0
	d.Dirty = true
}

// ActiveSlot reads DR6's condition bits to find which slot trapped, and
// clears them (spec §4.4 item 4, x86_64 path). Only the low 4 bits (one
// per slot) are meaningful.
func (d *AMD64DebugRegisters) ActiveSlot() (ok bool, idx uint8) {
	for i := uint8(0); i < 4; i++ {
		if *d.dr7&(1<<amd64EnableBit(i)) == 0 {
			continue
		}
		if *d.dr6&(1<<i) != 0 {
			*d.dr6 &^= 0xf
			d.Dirty = true
			return true, i
		}
	}
	return false, 0
}

// AMD64MaxHardwareWatchpoints is the x86_64 debug register capacity (spec §3).
const AMD64MaxHardwareWatchpoints = 4

// AMD64MaxHardwareBreakpoints on Linux/x86_64 is limited to 4 shared slots
// with watchpoints (spec §3, "Linux limits to 4").
const AMD64MaxHardwareBreakpoints = 4
