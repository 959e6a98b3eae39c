package lifecycle

import (
	"bufio"
	"os"
	"strings"
)

// debuggerAttached reports whether a tracer (dlv, gdb, strace) is attached,
// according to the TracerPid line of /proc/self/status.
func debuggerAttached() bool {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return false
	}
	defer f.Close()
	return tracerPID(bufio.NewScanner(f)) != ""
}

// tracerPID returns the non-zero TracerPid value from a /proc status file,
// or "" if there is none.
func tracerPID(s *bufio.Scanner) string {
	for s.Scan() {
		v, ok := strings.CutPrefix(s.Text(), "TracerPid:")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "0" {
			return ""
		}
		return v
	}
	return ""
}
