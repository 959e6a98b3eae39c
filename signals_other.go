//go:build !plan9

package lifecycle

import (
	"os"
	"syscall"
)

// trackedSignals are the OS signals that trigger a clean exit.
// SIGTERM is included for launchd/systemd service managers.
var trackedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// signalNumber returns the numeric value of sig, or 0 if sig is not a
// syscall.Signal.
func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
