package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg"
)

// runSession is a minimal line-oriented command loop over the engine API,
// standing in for a real client transport (spec explicitly leaves the
// transport unspecified). Grounded in shape on the teacher's
// pkg/terminal command dispatch (a command name plus a rest-of-line
// argument string), reduced to the handful of operations this demo
// exercises.
func runSession(d *dbg.Debugger) error {
	fmt.Println("dbgcore session. Commands: break <addr>, watch <addr> <size> <r|w|rw>, continue <tid>, step <tid>, regs <tid> <name>, state, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		var err error
		switch cmd {
		case "break", "b":
			err = cmdBreak(d, rest)
		case "watch", "w":
			err = cmdWatch(d, rest)
		case "continue", "c":
			err = cmdContinue(d, rest)
		case "step", "s":
			err = cmdStep(d, rest)
		case "regs", "r":
			err = cmdRegs(d, rest)
		case "state":
			fmt.Println(debugStateName(d.GetDebugState()))
		case "quit", "q":
			return nil
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func cmdBreak(d *dbg.Debugger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: break <addr> [hitcount]")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	var hitCount uint64
	if len(args) > 1 {
		hitCount, err = strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return err
		}
	}
	return d.SetBreakpoint(addr, hitCount, dbg.BreakpointHardware)
}

func cmdWatch(d *dbg.Debugger, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: watch <addr> <size> <r|w|rw>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	var kind dbg.AccessType
	switch args[2] {
	case "r":
		kind = dbg.AccessRead
	case "w":
		kind = dbg.AccessWrite
	case "rw":
		kind = dbg.AccessReadWrite
	default:
		return fmt.Errorf("access type must be r, w, or rw")
	}
	idx, err := d.SetWatchpoint(addr, size, kind)
	if err != nil {
		return err
	}
	fmt.Printf("watchpoint slot %d\n", idx)
	return nil
}

func cmdContinue(d *dbg.Debugger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: continue <tid>")
	}
	tid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return d.Continue(tid)
}

func cmdStep(d *dbg.Debugger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: step <tid>")
	}
	tid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return d.SingleStep(tid)
}

func cmdRegs(d *dbg.Debugger, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: regs <tid> <name>")
	}
	tid, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	v, err := d.ReadRegister(tid, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s = %#x\n", args[1], v)
	return nil
}
