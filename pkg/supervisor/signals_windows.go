//go:build windows

package supervisor

import "os"

// terminationSignals are the triggers that begin coordinated teardown.
// Unix signals are not implemented on Windows; interrupt is the only one
// reliably delivered.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
