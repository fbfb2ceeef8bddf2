//go:build windows

package dbg

import "github.com/nullpointer-dev/dbgcore/pkg/dbg/native"

func newBackendForPID(pid int) (native.Backend, error) {
	return native.NewWindowsBackend(pid), nil
}
