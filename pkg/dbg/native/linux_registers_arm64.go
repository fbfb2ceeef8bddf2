//go:build linux && arm64

package native

import sys "golang.org/x/sys/unix"
import "github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"

func toProtoRegisters(r *sys.PtraceRegs) proto.Registers {
	var out proto.Registers
	out.Arch = proto.ArchARM64
	copy(out.X[:], r.Regs[:31])
	out.SP = r.Sp
	out.PC = r.Pc
	out.CPSR = uint64(r.Pstate)
	return out
}

func fromProtoRegisters(regs proto.Registers, out *sys.PtraceRegs) {
	copy(out.Regs[:31], regs.X[:])
	out.Sp = regs.SP
	out.Pc = regs.PC
	out.Pstate = regs.CPSR
}

const nativeArch = proto.ArchARM64
