package dbg

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

// Instruction is one decoded machine instruction, the shape a disassembler
// collaborator needs to render a code listing (spec §4.3
// "GetSoftwareOriginalBytes... used by the disassembler collaborator").
type Instruction struct {
	Addr   uint64
	Length int
	Text   string
}

// Disassemble reads size bytes at addr and decodes them into instructions,
// substituting each software breakpoint's saved original bytes back in so
// a patched trap never shows up in the listing.
func (d *Debugger) Disassemble(addr uint64, size int) ([]Instruction, error) {
	buf, err := d.ReadMemory(addr, size)
	if err != nil {
		return nil, err
	}
	if err := d.unpatchTrapsInBuffer(addr, buf); err != nil {
		return nil, err
	}

	var out []Instruction
	off := 0
	arch := d.backend.Arch()
	for off < len(buf) {
		insn, length, text, err := decodeOne(arch, buf[off:], addr+uint64(off))
		if err != nil {
			out = append(out, Instruction{Addr: addr + uint64(off), Length: 1, Text: "(bad)"})
			off++
			continue
		}
		_ = insn
		out = append(out, Instruction{Addr: addr + uint64(off), Length: length, Text: text})
		off += length
	}
	return out, nil
}

// unpatchTrapsInBuffer overlays original bytes for any software breakpoint
// whose trap prefix falls inside [addr, addr+len(buf)).
func (d *Debugger) unpatchTrapsInBuffer(addr uint64, buf []byte) error {
	d.swbpMu.Lock()
	defer d.swbpMu.Unlock()
	end := addr + uint64(len(buf))
	for bpAddr, slot := range d.swbp {
		if !slot.InUse || bpAddr < addr || bpAddr >= end {
			continue
		}
		off := bpAddr - addr
		n := copy(buf[off:], slot.Original)
		if n != len(slot.Original) {
			return fmt.Errorf("dbg: truncated original bytes at %#x", bpAddr)
		}
	}
	return nil
}

func decodeOne(arch proto.Arch, buf []byte, pc uint64) (interface{}, int, string, error) {
	if arch == proto.ArchARM64 {
		insn, err := arm64asm.Decode(buf)
		if err != nil {
			return nil, 0, "", err
		}
		return insn, 4, arm64asm.GoSyntax(insn, pc, nil, nil), nil
	}
	insn, err := x86asm.Decode(buf, 64)
	if err != nil {
		return nil, 0, "", err
	}
	return insn, insn.Len, x86asm.GoSyntax(insn, pc, nil), nil
}
