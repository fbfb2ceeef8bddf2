//go:build linux

package native

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/nullpointer-dev/dbgcore/internal/logflags"
)

// Spawn forks+execs cmd under PTRACE_TRACEME, then promotes the tracer
// relationship from TRACEME to SEIZE semantics so the rest of the engine
// can treat a spawned target identically to an attached one (spec §4.8).
func Spawn(cmd []string, wd string, ptyMaster *os.File, ptySlave *os.File) (*LinuxBackend, int, error) {
	if len(cmd) == 0 {
		return nil, 0, fmt.Errorf("no command given")
	}
	proc := exec.Command(cmd[0], cmd[1:]...)
	proc.Dir = wd
	proc.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Setpgid: true}
	if ptySlave != nil {
		proc.Stdin = ptySlave
		proc.Stdout = ptySlave
		proc.Stderr = ptySlave
		proc.SysProcAttr.Setsid = true
		proc.SysProcAttr.Setctty = true
	} else {
		proc.Stdin = os.Stdin
		proc.Stdout = os.Stdout
		proc.Stderr = os.Stderr
	}

	if err := proc.Start(); err != nil {
		return nil, 0, fmt.Errorf("spawn: %w", err)
	}
	pid := proc.Process.Pid

	// Step 2: wait for the initial SIGTRAP at the post-exec point
	// (TRACEME stops the child right after execve).
	var ws sys.WaitStatus
	if _, err := sys.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, 0, fmt.Errorf("waiting for post-exec stop: %w", err)
	}
	if ws.Exited() {
		return nil, ws.ExitStatus(), fmt.Errorf("target exited during exec, status %d", ws.ExitStatus())
	}

	if err := promoteToSeize(pid); err != nil {
		_ = sys.Kill(pid, sys.SIGKILL)
		return nil, 0, err
	}

	if logflags.Debugger() {
		logflags.DebuggerLogger().Debugf("spawned pid %d, promoted TRACEME->SEIZE", pid)
	}
	return NewLinuxBackend(pid), pid, nil
}

// promoteToSeize performs the (a)-(f) sequence of spec §4.8 step 3: send
// SIGSTOP, detach from TRACEME, wait for the SIGSTOP to land, PTRACE_SEIZE
// with TRACECLONE, PTRACE_INTERRUPT to obtain a seize-stop, wait for it.
func promoteToSeize(pid int) error {
	if err := sys.Kill(pid, sys.SIGSTOP); err != nil {
		return fmt.Errorf("promote: sending SIGSTOP: %w", err)
	}
	if err := sys.PtraceDetach(pid); err != nil {
		return fmt.Errorf("promote: detaching TRACEME: %w", err)
	}
	var ws sys.WaitStatus
	if _, err := sys.Wait4(pid, &ws, sys.WUNTRACED, nil); err != nil {
		return fmt.Errorf("promote: waiting for SIGSTOP: %w", err)
	}
	if err := ptraceSeizeCall(pid, uintptr(ptraceOptionsNormal)); err != nil {
		return fmt.Errorf("promote: PTRACE_SEIZE: %w", err)
	}
	if err := sys.Kill(pid, sys.SIGCONT); err != nil {
		return fmt.Errorf("promote: SIGCONT: %w", err)
	}
	if err := ptraceInterruptCall(pid); err != nil {
		return fmt.Errorf("promote: PTRACE_INTERRUPT: %w", err)
	}
	if _, err := sys.Wait4(pid, &ws, 0, nil); err != nil {
		return fmt.Errorf("promote: waiting for seize-stop: %w", err)
	}
	return nil
}
