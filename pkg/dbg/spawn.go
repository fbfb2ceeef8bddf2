//go:build linux

package dbg

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"github.com/mattn/go-isatty"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/native"
)

// SpawnOptions configures Spawn (spec §4.8).
type SpawnOptions struct {
	Command []string
	Dir     string
	UsePTY  bool
}

// SpawnResult reports what Spawn produced: the live Debugger plus, when a
// PTY was requested, its master file descriptor.
type SpawnResult struct {
	Debugger  *Debugger
	MasterPTY *os.File
}

// Spawn forks and execs a new target, promotes tracing to SEIZE semantics,
// and delivers the initial entry-point notification (spec §4.8). log and
// onException are wired into the returned Debugger exactly as they would be
// for New.
func Spawn(opts SpawnOptions, log Logger, onException ExceptionHandler) (*SpawnResult, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("dbg: spawn requires a command")
	}

	var masterFile, slaveFile *os.File
	if opts.UsePTY {
		// Foreground/tty control only means anything if this process itself
		// has a controlling terminal to model the child's after; without
		// one (piped stdin, running under a service manager) there is no
		// real terminal size or job-control session to hand the child.
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return nil, fmt.Errorf("dbg: pty requested but stdin is not a terminal")
		}
		m, s, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("allocating pty: %w", err)
		}
		if err := pty.Setsize(m, &pty.Winsize{Rows: 24, Cols: 80}); err != nil {
			_ = m.Close()
			_ = s.Close()
			return nil, fmt.Errorf("sizing pty: %w", err)
		}
		masterFile, slaveFile = m, s
	}

	backend, pid, err := native.Spawn(opts.Command, opts.Dir, masterFile, slaveFile)
	if slaveFile != nil {
		_ = slaveFile.Close()
	}
	if err != nil {
		if masterFile != nil {
			_ = masterFile.Close()
		}
		return nil, err
	}

	d := New(pid, backend, log, onException)
	d.ensureRunning()
	err = d.enqueue(func() error {
		d.addThread(pid, true)
		d.signals.syncFromGlobal()
		return nil
	})
	if err != nil {
		return nil, err
	}

	regs, rerr := backend.GetRegisters(pid)
	if rerr != nil {
		d.logf(LogWarn, "reading entry-point registers for pid %d: %v", pid, rerr)
	}
	d.mutateThread(pid, func(ts *ThreadState) { ts.Regs = regs })
	d.setState(StatePaused)
	info := &ExceptionInfo{
		Arch: backend.Arch(), Regs: regs, ThreadID: pid,
		ExceptionType: ExceptionBreakpoint, MemoryAddress: regs.PCValue(),
	}
	d.notifyBreak(pid, info)

	return &SpawnResult{Debugger: d, MasterPTY: masterFile}, nil
}
