//go:build unix

package lifecycle

import "golang.org/x/sys/unix"

// enableCoreDumps raises the soft core file size limit to the hard limit.
func enableCoreDumps() error {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_CORE, &lim); err != nil {
		return err
	}
	if lim.Cur == lim.Max {
		return nil
	}
	lim.Cur = lim.Max
	return unix.Setrlimit(unix.RLIMIT_CORE, &lim)
}
