//go:build linux

package native

import (
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// Raw ptrace requests not wrapped by golang.org/x/sys/unix, grounded on
// the teacher's direct syscall.Syscall6(SYS_PTRACE, ...) usage for
// register-set and options it doesn't wrap either (see
// pkg/proc/native/threads_linux_arm64.go, ptrace_linux_386.go).
const (
	ptraceSeize     = 0x4206
	ptraceInterrupt = 0x4207
	ptraceGetSigInfo = 0x4202
)

const debugRegUserOffset = 848 // offset of u_debugreg in struct user, x86_64 (arch/x86/kernel/ptrace.c)

const ntArmHWWatch = 0x403 // NT_ARM_HW_WATCH, arch/arm64/include/uapi/asm/ptrace.h
const ntArmHWBreak = 0x402 // NT_ARM_HW_BREAK, same header

func ptraceSeizeCall(tid int, options uintptr) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, ptraceSeize, uintptr(tid), 0, options, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceInterruptCall(tid int) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, ptraceInterrupt, uintptr(tid), 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ptraceSiginfo mirrors the fields of Linux's siginfo_t that are common to
// the sigfault union member (SIGTRAP/SIGSEGV/SIGBUS/SIGILL/SIGFPE) on
// 64-bit architectures: a 12-byte header, natural alignment padding, then
// the faulting address. Modeled on the teacher's ptraceSiginfoArm64
// (pkg/proc/native/threads_linux_arm64.go), generalized to also serve
// x86_64 since the generic siginfo_t layout is identical there.
type ptraceSiginfo struct {
	Signo int32
	Errno int32
	Code  int32
	_     int32 // alignment padding before the union
	Addr  uint64
	_     [96]byte // rest of siginfo_t, unused
}

func ptraceGetSiginfo(tid int) (ptraceSiginfo, error) {
	var info ptraceSiginfo
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, ptraceGetSigInfo, uintptr(tid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return info, errno
	}
	return info, nil
}

func siginfoAddr(info *ptraceSiginfo) uint64 { return info.Addr }

// siginfoIsHWBreak reports whether info's si_code identifies a hardware
// breakpoint/watchpoint trap (TRAP_HWBKPT, spec §4.4 item 4 ARM64 path).
func siginfoIsHWBreak(info *ptraceSiginfo) bool {
	const trapHWBkpt = 0x4
	return info.Signo == int32(sys.SIGTRAP) && (info.Code&0xffff) == trapHWBkpt
}

// readAMD64DebugRegs reads DR0-DR3, DR6, DR7 via PTRACE_PEEKUSR, skipping
// the DR4/DR5 aliases the kernel refuses to expose.
func readAMD64DebugRegs(tid int) ([8]uint64, error) {
	var regs [8]uint64
	for i := range regs {
		if i == 4 || i == 5 {
			continue
		}
		v, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_PEEKUSR, uintptr(tid),
			uintptr(debugRegUserOffset)+uintptr(i)*unsafe.Sizeof(regs[0]), 0, 0, 0)
		if errno != 0 {
			return regs, errno
		}
		regs[i] = uint64(v)
	}
	return regs, nil
}

func writeAMD64DebugRegs(tid int, regs [8]uint64) error {
	for i := range regs {
		if i == 4 || i == 5 {
			continue
		}
		_, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_POKEUSR, uintptr(tid),
			uintptr(debugRegUserOffset)+uintptr(i)*unsafe.Sizeof(regs[0]), uintptr(regs[i]), 0, 0)
		if errno != 0 {
			return errno
		}
	}
	return nil
}

// readARM64HWWatch reads the NT_ARM_HW_WATCH register set (spec §4.2
// ARM64 encoding), grounded on threads_linux_arm64.go's getWatchpoints.
func readARM64HWWatch(tid int) ([]uint64, error) {
	words := make([]uint64, 16*2+1)
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(&words[0])), Len: uint64(len(words)) * 8}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETREGSET, uintptr(tid), ntArmHWWatch, uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return nil, errno
	}
	num := int(words[0] & 0xff)
	if num > 16 {
		num = 16
	}
	return words[:1+num*2], nil
}

func writeARM64HWWatch(tid int, words []uint64) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(&words[0])), Len: uint64(len(words)) * 8}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_SETREGSET, uintptr(tid), ntArmHWWatch, uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// readARM64HWBreak/writeARM64HWBreak are the NT_ARM_HW_BREAK analogues of
// the HW_WATCH pair above, backing hardware execution breakpoints.
func readARM64HWBreak(tid int) ([]uint64, error) {
	words := make([]uint64, 16*2+1)
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(&words[0])), Len: uint64(len(words)) * 8}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETREGSET, uintptr(tid), ntArmHWBreak, uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return nil, errno
	}
	num := int(words[0] & 0xff)
	if num > 16 {
		num = 16
	}
	return words[:1+num*2], nil
}

func writeARM64HWBreak(tid int, words []uint64) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(&words[0])), Len: uint64(len(words)) * 8}
	_, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_SETREGSET, uintptr(tid), ntArmHWBreak, uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
