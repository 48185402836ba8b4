//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

// terminationSignals are the triggers that begin coordinated teardown
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT}
}
