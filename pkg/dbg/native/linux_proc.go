//go:build linux

package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
	"github.com/nullpointer-dev/dbgcore/internal/logflags"
)

// ptraceOptions mirrors the teacher's ptraceOptionsNormal/FollowExec pair
// (pkg/proc/native/proc_linux.go): TRACECLONE always, plus TRACEEXEC and
// TRACEVFORK when FollowExec is enabled (SPEC_FULL.md "FollowExec toggle").
const (
	ptraceOptionsNormal     = syscall.PTRACE_O_TRACECLONE
	ptraceOptionsFollowExec = syscall.PTRACE_O_TRACECLONE | syscall.PTRACE_O_TRACEVFORK | syscall.PTRACE_O_TRACEEXEC
)

// LinuxBackend implements Backend on top of ptrace(2) and /proc.
type LinuxBackend struct {
	Pid        int
	FollowExec bool
}

// NewLinuxBackend constructs a backend bound to an existing or
// about-to-exist target pid.
func NewLinuxBackend(pid int) *LinuxBackend {
	return &LinuxBackend{Pid: pid}
}

func (b *LinuxBackend) Arch() proto.Arch { return nativeArch }

func (b *LinuxBackend) Threads() ([]int, error) {
	paths, err := filepath.Glob(fmt.Sprintf("/proc/%d/task/*", b.Pid))
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(paths))
	for _, p := range paths {
		tid, err := strconv.Atoi(filepath.Base(p))
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}

// Seize attaches to tid using PTRACE_SEIZE with TRACECLONE so that clone
// events are reported without ever stopping the thread (spec §4.6).
func (b *LinuxBackend) Seize(tid int) error {
	opts := uintptr(ptraceOptionsNormal)
	if b.FollowExec {
		opts = uintptr(ptraceOptionsFollowExec)
	}
	if err := ptraceSeizeCall(tid, opts); err != nil {
		return fmt.Errorf("PTRACE_SEIZE %d: %w", tid, err)
	}
	if logflags.Ptrace() {
		logflags.PtraceLogger().Debugf("seized thread %d", tid)
	}
	return nil
}

func (b *LinuxBackend) Detach(tid int) error {
	return sys.PtraceDetach(tid)
}

// Stop requests a debug-stop on an already-seized thread via
// PTRACE_INTERRUPT (spec §4.7).
func (b *LinuxBackend) Stop(tid int) error {
	return ptraceInterruptCall(tid)
}

func (b *LinuxBackend) Resume(tid int, sig int) error {
	return sys.PtraceCont(tid, sig)
}

// SingleStep issues PTRACE_SINGLESTEP and returns immediately without
// waiting for the resulting trap; the trap arrives later through the same
// WaitEvent stream as any other stop, so the engine's event demultiplexer
// can classify it via the thread's single_step_mode (spec §4.4 item 3)
// instead of it being consumed here out of band.
func (b *LinuxBackend) SingleStep(tid int) error {
	return sys.PtraceSingleStep(tid)
}

func (b *LinuxBackend) GetRegisters(tid int) (proto.Registers, error) {
	var raw sys.PtraceRegs
	if err := sys.PtraceGetRegs(tid, &raw); err != nil {
		return proto.Registers{}, err
	}
	return toProtoRegisters(&raw), nil
}

func (b *LinuxBackend) SetRegisters(tid int, regs proto.Registers) error {
	var raw sys.PtraceRegs
	if err := sys.PtraceGetRegs(tid, &raw); err != nil {
		return err
	}
	fromProtoRegisters(regs, &raw)
	return sys.PtraceSetRegs(tid, &raw)
}

func (b *LinuxBackend) PeekWord(addr uint64) (uint64, error) {
	var buf [8]byte
	n, err := sys.PtracePeekData(b.Pid, uintptr(addr), buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short peek at %#x: got %d bytes", addr, n)
	}
	return leUint64(buf[:]), nil
}

func (b *LinuxBackend) PokeWord(addr uint64, word uint64) error {
	var buf [8]byte
	putLeUint64(buf[:], word)
	n, err := sys.PtracePokeData(b.Pid, uintptr(addr), buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short poke at %#x: wrote %d bytes", addr, n)
	}
	return nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// WaitEvent blocks (or polls, if nohang) for the next debug event on any
// thread of the target and classifies its raw shape. Deeper classification
// (clone vs. interrupt-stop vs. breakpoint vs. signal) happens in the
// engine's event demultiplexer (spec §4.4); this layer reports only what
// the kernel told us.
func (b *LinuxBackend) WaitEvent(nohang bool) (*proto.StopEvent, error) {
	opt := sys.WALL
	if nohang {
		opt |= sys.WNOHANG
	}
	var ws sys.WaitStatus
	wpid, err := sys.Wait4(-1, &ws, opt, nil)
	if err != nil {
		if err == sys.ECHILD {
			return nil, err
		}
		return nil, err
	}
	if wpid == 0 {
		return nil, nil // WNOHANG, nothing ready
	}
	ev := &proto.StopEvent{ThreadID: wpid}
	if ws.Exited() {
		ev.Exited = true
		ev.ExitStatus = ws.ExitStatus()
		return ev, nil
	}
	if ws.Signaled() {
		ev.Exited = true
		ev.ExitStatus = -int(ws.Signal())
		return ev, nil
	}
	ev.Signal = int(ws.StopSignal())
	if ev.Signal == int(sys.SIGTRAP) {
		ev.TrapCause = ws.TrapCause()
		if ev.TrapCause == sys.PTRACE_EVENT_CLONE {
			cloned, cerr := sys.PtraceGetEventMsg(wpid)
			if cerr == nil {
				ev.NewThreadID = int(cloned)
			}
		}
	}
	if fault, ok := readFaultAddr(wpid); ok {
		ev.FaultAddr = fault
		ev.HasFaultAddr = true
	}
	return ev, nil
}

// readFaultAddr fetches siginfo.si_addr, used both for ARM64 watchpoint
// classification and for reporting a segfault's faulting address
// (spec §4.4 items 4 and 6).
func readFaultAddr(tid int) (uint64, bool) {
	info, err := ptraceGetSiginfo(tid)
	if err != nil {
		return 0, false
	}
	addr := siginfoAddr(&info)
	if addr == 0 {
		return 0, false
	}
	return addr, true
}

func (b *LinuxBackend) Kill() error {
	return sys.Kill(-b.Pid, sys.SIGKILL)
}

// WaitForProcessName scans /proc for a process whose cmdline begins with
// prefix, the way the teacher's WaitFor does (SPEC_FULL.md "WaitFor
// process-name search").
func WaitForProcessName(prefix string) (int, error) {
	des, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, de := range des {
		if !de.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(de.Name())
		if err != nil {
			continue
		}
		buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			continue
		}
		for i := range buf {
			if buf[i] == 0 {
				buf[i] = ' '
			}
		}
		if len(buf) >= len(prefix) && string(buf[:len(prefix)]) == prefix {
			return pid, nil
		}
	}
	return 0, errors.New("no matching process found")
}
