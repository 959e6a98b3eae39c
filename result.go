package lifecycle

import "fmt"

// Result tells the lifecycle whether to keep running or to terminate with
// an exit code.  The zero value is Continue.
type Result struct {
	terminate bool
	code      int
}

// Continue keeps the process running.
func Continue() Result { return Result{} }

// Terminate ends the process with code once cleanup has run.
func Terminate(code int) Result { return Result{terminate: true, code: code} }

// Terminated reports whether r requests termination.
func (r Result) Terminated() bool { return r.terminate }

// Code returns the exit code carried by r.  It is 0 for Continue.
func (r Result) Code() int { return r.code }

func (r Result) String() string {
	if !r.terminate {
		return "continue"
	}
	return fmt.Sprintf("terminate(%d)", r.code)
}
