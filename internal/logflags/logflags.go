// Package logflags controls the debug logging domains of the engine.
package logflags

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

var (
	debuggerFlag = false
	eventFlag    = false
	ptraceFlag   = false
	coordFlag    = false
)

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Out = colorable.NewColorable(os.Stderr)
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.PanicLevel
	}
	return logger.WithFields(fields)
}

// Debugger returns true if the engine's lifecycle and request-queue
// package should log.
func Debugger() bool { return debuggerFlag }

// DebuggerLogger returns a logger for lifecycle and command-queue events.
func DebuggerLogger() *logrus.Entry {
	return makeLogger(debuggerFlag, logrus.Fields{"layer": "dbg"})
}

// Event returns true if the event demultiplexer should log every
// classified stop.
func Event() bool { return eventFlag }

// EventLogger returns a logger for the event loop.
func EventLogger() *logrus.Entry {
	return makeLogger(eventFlag, logrus.Fields{"layer": "event"})
}

// Ptrace returns true if raw platform primitive calls should log.
func Ptrace() bool { return ptraceFlag }

// PtraceLogger returns a logger for the native platform-primitives layer.
func PtraceLogger() *logrus.Entry {
	return makeLogger(ptraceFlag, logrus.Fields{"layer": "native"})
}

// Coordinator returns true if the stop-the-world coordinator should log.
func Coordinator() bool { return coordFlag }

// CoordinatorLogger returns a logger for stop-the-world operations.
func CoordinatorLogger() *logrus.Entry {
	return makeLogger(coordFlag, logrus.Fields{"layer": "coordinator"})
}

var errLogstrWithoutLog = errors.New("log domains specified without enabling logging")

// Setup configures which log domains are active. logstr is a comma
// separated list of domain names: "dbg", "event", "native", "coordinator".
func Setup(enabled bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !enabled {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "dbg"
	}
	for _, domain := range strings.Split(logstr, ",") {
		switch domain {
		case "dbg":
			debuggerFlag = true
		case "event":
			eventFlag = true
		case "native":
			ptraceFlag = true
		case "coordinator":
			coordFlag = true
		}
	}
	return nil
}
