//go:build plan9

package lifecycle

import "os"

// trackedSignals are the OS signals that trigger a clean exit.
var trackedSignals = []os.Signal{os.Interrupt}

// signalNumber maps plan9 notes onto the POSIX numbers used for exit codes.
// Only the interrupt note is tracked, so everything else is 0.
func signalNumber(sig os.Signal) int {
	if sig == os.Interrupt {
		return 2
	}
	return 0
}
