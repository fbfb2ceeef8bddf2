//go:build darwin

package dbg

import "github.com/nullpointer-dev/dbgcore/pkg/dbg/native"

func newBackendForPID(pid int) (native.Backend, error) {
	return native.NewDarwinBackend(pid), nil
}
