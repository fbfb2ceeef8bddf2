//go:build linux && amd64

package native

import sys "golang.org/x/sys/unix"
import "github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"

func toProtoRegisters(r *sys.PtraceRegs) proto.Registers {
	return proto.Registers{
		Arch:    proto.ArchX86_64,
		Rax:     r.Rax, Rbx: r.Rbx, Rcx: r.Rcx, Rdx: r.Rdx,
		Rsi:     r.Rsi, Rdi: r.Rdi, Rbp: r.Rbp, Rsp: r.Rsp,
		R8:      r.R8, R9: r.R9, R10: r.R10, R11: r.R11,
		R12:     r.R12, R13: r.R13, R14: r.R14, R15: r.R15,
		Rip:     r.Rip, Rflags: r.Eflags,
		Cs:      r.Cs, Ss: r.Ss, Ds: r.Ds, Es: r.Es, Fs: r.Fs, Gs: r.Gs,
		FsBase:  r.Fs_base, GsBase: r.Gs_base,
	}
}

func fromProtoRegisters(regs proto.Registers, out *sys.PtraceRegs) {
	out.Rax, out.Rbx, out.Rcx, out.Rdx = regs.Rax, regs.Rbx, regs.Rcx, regs.Rdx
	out.Rsi, out.Rdi, out.Rbp, out.Rsp = regs.Rsi, regs.Rdi, regs.Rbp, regs.Rsp
	out.R8, out.R9, out.R10, out.R11 = regs.R8, regs.R9, regs.R10, regs.R11
	out.R12, out.R13, out.R14, out.R15 = regs.R12, regs.R13, regs.R14, regs.R15
	out.Rip, out.Eflags = regs.Rip, regs.Rflags
	out.Cs, out.Ss, out.Ds, out.Es, out.Fs, out.Gs = regs.Cs, regs.Ss, regs.Ds, regs.Es, regs.Fs, regs.Gs
	out.Fs_base, out.Gs_base = regs.FsBase, regs.GsBase
}

const nativeArch = proto.ArchX86_64
