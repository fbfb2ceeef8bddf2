//go:build linux

package dbg

import "github.com/nullpointer-dev/dbgcore/pkg/dbg/native"

func newBackendForPID(pid int) (native.Backend, error) {
	return native.NewLinuxBackend(pid), nil
}
