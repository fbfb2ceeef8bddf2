package dbg

import "fmt"

// arm64RegNames and amd64RegNames are the canonical register mnemonics
// accepted by ReadRegister/WriteRegister (spec §4.5, "Register name canon").
var arm64RegNames = map[string]int{
	"x0": 0, "x1": 1, "x2": 2, "x3": 3, "x4": 4, "x5": 5, "x6": 6, "x7": 7,
	"x8": 8, "x9": 9, "x10": 10, "x11": 11, "x12": 12, "x13": 13, "x14": 14,
	"x15": 15, "x16": 16, "x17": 17, "x18": 18, "x19": 19, "x20": 20,
	"x21": 21, "x22": 22, "x23": 23, "x24": 24, "x25": 25, "x26": 26,
	"x27": 27, "x28": 28, "x29": 29, "x30": 30,
}

var amd64RegNames = map[string]bool{
	"rax": true, "rbx": true, "rcx": true, "rdx": true,
	"rsi": true, "rdi": true, "rbp": true, "rsp": true,
	"r8": true, "r9": true, "r10": true, "r11": true,
	"r12": true, "r13": true, "r14": true, "r15": true,
	"rip": true, "rflags": true,
	"cs": true, "ss": true, "ds": true, "es": true, "fs": true, "gs": true,
	"fs_base": true, "gs_base": true,
}

// ErrUnknownRegister is returned when a register name falls outside the
// canonical set for the target's architecture.
type ErrUnknownRegister struct {
	Arch Arch
	Name string
}

func (e ErrUnknownRegister) Error() string {
	return fmt.Sprintf("unknown register %q for arch %d", e.Name, e.Arch)
}

// ReadRegisterValue extracts a named register's value out of a snapshot.
func ReadRegisterValue(regs *Registers, name string) (uint64, error) {
	if regs.Arch == ArchARM64 {
		if name == "sp" {
			return regs.SP, nil
		}
		if name == "pc" {
			return regs.PC, nil
		}
		if name == "pstate" {
			return regs.CPSR, nil
		}
		if idx, ok := arm64RegNames[name]; ok {
			return regs.X[idx], nil
		}
		return 0, ErrUnknownRegister{regs.Arch, name}
	}
	if !amd64RegNames[name] {
		return 0, ErrUnknownRegister{regs.Arch, name}
	}
	switch name {
	case "rax":
		return regs.Rax, nil
	case "rbx":
		return regs.Rbx, nil
	case "rcx":
		return regs.Rcx, nil
	case "rdx":
		return regs.Rdx, nil
	case "rsi":
		return regs.Rsi, nil
	case "rdi":
		return regs.Rdi, nil
	case "rbp":
		return regs.Rbp, nil
	case "rsp":
		return regs.Rsp, nil
	case "r8":
		return regs.R8, nil
	case "r9":
		return regs.R9, nil
	case "r10":
		return regs.R10, nil
	case "r11":
		return regs.R11, nil
	case "r12":
		return regs.R12, nil
	case "r13":
		return regs.R13, nil
	case "r14":
		return regs.R14, nil
	case "r15":
		return regs.R15, nil
	case "rip":
		return regs.Rip, nil
	case "rflags":
		return regs.Rflags, nil
	case "cs":
		return regs.Cs, nil
	case "ss":
		return regs.Ss, nil
	case "ds":
		return regs.Ds, nil
	case "es":
		return regs.Es, nil
	case "fs":
		return regs.Fs, nil
	case "gs":
		return regs.Gs, nil
	case "fs_base":
		return regs.FsBase, nil
	case "gs_base":
		return regs.GsBase, nil
	}
	return 0, ErrUnknownRegister{regs.Arch, name}
}

// WriteRegisterValue sets a named register's value in a snapshot.
func WriteRegisterValue(regs *Registers, name string, value uint64) error {
	if regs.Arch == ArchARM64 {
		if name == "sp" {
			regs.SP = value
			return nil
		}
		if name == "pc" {
			regs.PC = value
			return nil
		}
		if name == "pstate" {
			regs.CPSR = value
			return nil
		}
		if idx, ok := arm64RegNames[name]; ok {
			regs.X[idx] = value
			return nil
		}
		return ErrUnknownRegister{regs.Arch, name}
	}
	if !amd64RegNames[name] {
		return ErrUnknownRegister{regs.Arch, name}
	}
	switch name {
	case "rax":
		regs.Rax = value
	case "rbx":
		regs.Rbx = value
	case "rcx":
		regs.Rcx = value
	case "rdx":
		regs.Rdx = value
	case "rsi":
		regs.Rsi = value
	case "rdi":
		regs.Rdi = value
	case "rbp":
		regs.Rbp = value
	case "rsp":
		regs.Rsp = value
	case "r8":
		regs.R8 = value
	case "r9":
		regs.R9 = value
	case "r10":
		regs.R10 = value
	case "r11":
		regs.R11 = value
	case "r12":
		regs.R12 = value
	case "r13":
		regs.R13 = value
	case "r14":
		regs.R14 = value
	case "r15":
		regs.R15 = value
	case "rip":
		regs.Rip = value
	case "rflags":
		regs.Rflags = value
	case "cs":
		regs.Cs = value
	case "ss":
		regs.Ss = value
	case "ds":
		regs.Ds = value
	case "es":
		regs.Es = value
	case "fs":
		regs.Fs = value
	case "gs":
		regs.Gs = value
	case "fs_base":
		regs.FsBase = value
	case "gs_base":
		regs.GsBase = value
	}
	return nil
}
