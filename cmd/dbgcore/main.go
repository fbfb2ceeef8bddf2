// Command dbgcore is a terminal front-end over pkg/dbg, demonstrating the
// attach/spawn/breakpoint/watchpoint API from a shell the way cmd/dlv's
// terminal exercises delve's own client API. It is not part of the
// engine's public surface: the transport between a client and the engine
// is left unspecified, and this CLI simply calls the in-process API
// directly.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cosiner/argv"
	"github.com/spf13/cobra"

	"github.com/nullpointer-dev/dbgcore/internal/logflags"
	"github.com/nullpointer-dev/dbgcore/pkg/dbg"
)

var (
	logEnabled bool
	usePTY     bool
)

func main() {
	root := &cobra.Command{
		Use:   "dbgcore",
		Short: "Demonstration front-end for the dbgcore process debugger engine.",
	}
	root.PersistentFlags().BoolVar(&logEnabled, "log", false, "enable debugger-domain logging")
	root.PersistentFlags().BoolVar(&usePTY, "tty", false, "allocate a pty for the spawned target")

	root.AddCommand(newSpawnCommand())
	root.AddCommand(newAttachCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSpawnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spawn <command-line>",
		Short: "Spawn a target under the debugger and drop into an interactive session.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(logEnabled, ""); err != nil {
				return err
			}

			cmdline := args[0]
			for _, a := range args[1:] {
				cmdline += " " + a
			}
			argvSets, err := argv.Argv(cmdline, func(s string) (string, error) {
				return "", fmt.Errorf("backtick expansion not supported in %q", s)
			}, nil)
			if err != nil {
				return fmt.Errorf("parsing command line: %w", err)
			}
			if len(argvSets) != 1 || len(argvSets[0]) == 0 {
				return fmt.Errorf("illegal command line %q", cmdline)
			}

			result, err := dbg.Spawn(dbg.SpawnOptions{
				Command: argvSets[0],
				UsePTY:  usePTY,
			}, cliLogger, cliExceptionHandler)
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			defer result.Debugger.Destroy()

			fmt.Printf("spawned target, debug state: %s\n", debugStateName(result.Debugger.GetDebugState()))
			return runSession(result.Debugger)
		},
	}
}

func newAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach the debugger to an already-running process.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(logEnabled, ""); err != nil {
				return err
			}

			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}

			d, err := dbg.NewAttached(pid, cliLogger, cliExceptionHandler)
			if err != nil {
				return fmt.Errorf("attach: %w", err)
			}
			defer d.Destroy()

			fmt.Printf("attached to pid %d\n", pid)
			return runSession(d)
		},
	}
}

func cliLogger(level dbg.LogLevel, msg string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", logLevelName(level), msg)
}

func cliExceptionHandler(info *dbg.ExceptionInfo) bool {
	fmt.Printf("thread %d stopped: %s at %#x\n", info.ThreadID, exceptionName(info.ExceptionType), info.MemoryAddress)
	return true
}

func logLevelName(l dbg.LogLevel) string {
	switch l {
	case dbg.LogError:
		return "error"
	case dbg.LogWarn:
		return "warn"
	case dbg.LogInfo:
		return "info"
	case dbg.LogDebug:
		return "debug"
	case dbg.LogTrace:
		return "trace"
	default:
		return "?"
	}
}

func exceptionName(t dbg.ExceptionType) string {
	switch t {
	case dbg.ExceptionBreakpoint:
		return "breakpoint"
	case dbg.ExceptionWatchpoint:
		return "watchpoint"
	case dbg.ExceptionSingleStep:
		return "single-step"
	case dbg.ExceptionSigsegv:
		return "SIGSEGV"
	case dbg.ExceptionSigbus:
		return "SIGBUS"
	case dbg.ExceptionSigfpe:
		return "SIGFPE"
	case dbg.ExceptionSigill:
		return "SIGILL"
	case dbg.ExceptionSigabrt:
		return "SIGABRT"
	case dbg.ExceptionSigtrap:
		return "SIGTRAP"
	case dbg.ExceptionSignal:
		return "signal"
	default:
		return "unknown"
	}
}

func debugStateName(s dbg.DebugState) string {
	switch s {
	case dbg.StateRunning:
		return "running"
	case dbg.StateBreakpointHit:
		return "breakpoint-hit"
	case dbg.StateWatchpointHit:
		return "watchpoint-hit"
	case dbg.StateSingleStepping:
		return "single-stepping"
	case dbg.StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
