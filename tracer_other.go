//go:build !linux

package lifecycle

// debuggerAttached is only implemented on Linux.
func debuggerAttached() bool { return false }
