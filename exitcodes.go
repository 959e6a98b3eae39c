package lifecycle

// Exit codes produced by the lifecycle itself.  A main routine's own code
// and the negated number of a tracked signal pass through unchanged.
const (
	ExitSuccess = 0
	// ExitFailure is used when the main routine returns an error with a
	// zero code.
	ExitFailure = 1
	// ExitPanic matches the Go runtime's status for an unrecovered panic.
	ExitPanic = 2
)
