// Package lifecycle gives a command-line program a uniform shutdown and
// diagnostic behavior.
//
// A Lifecycle owns three things for the life of the process:
//
//   - the handler installed for the tracked signals (interrupt, terminate),
//   - the deferred cleanup routines, which run exactly once on every
//     in-process exit path, and
//   - the crash reporter consulted when the main routine panics.
//
// The composition root creates one Lifecycle, registers cleanup and signal
// handlers, hands it the main routine via Run, and finishes with Exit.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cptaffe/script-template/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// State is a position in the process lifecycle.  Transitions only move
// forward: Starting, Running, ShuttingDown, Exited.
type State int32

const (
	Starting State = iota
	Running
	ShuttingDown
	Exited
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting down"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Handler is invoked asynchronously when a tracked signal arrives.
// Returning a terminating Result ends Run with the carried exit code.
type Handler func(sig os.Signal) Result

// MainFunc is the program's main routine.  ctx is cancelled when a tracked
// signal terminates the process.  A non-nil error with a zero code exits 1.
type MainFunc func(ctx context.Context) (int, error)

// Options configures New.  Every field is optional.
type Options struct {
	// Stdout receives the shutdown notice.  Defaults to os.Stdout.
	Stdout io.Writer
	// Logger overrides zap.L().  Leave nil to pick up the global logger
	// at the time of each call, so diagnostics configured after New apply.
	Logger *zap.Logger
	// Reporter handles panics escaping the main routine.  Defaults to a
	// non-debug reporter writing to os.Stderr.
	Reporter *CrashReporter
	// Exit terminates the process.  Defaults to os.Exit.
	Exit func(code int)
}

// Lifecycle is the process lifecycle shim.  Create one with New.
type Lifecycle struct {
	stdout io.Writer
	log    *zap.Logger
	exit   func(int)

	// state is written under stateMu and read without it.
	stateMu sync.Mutex
	state   atomic.Int32
	// cause is the Result of the signal that began shutdown, if one did.
	cause *Result

	// mu guards the signal installation and the reporter.
	mu       sync.Mutex
	reporter *CrashReporter
	sigC     chan os.Signal
	stop     chan struct{}
	ignoring bool

	// results carries terminating handler Results to Run.
	results chan Result

	cleanupMu      sync.Mutex
	cleanups       []func()
	cleanupStarted atomic.Bool
	cleanupDone    chan struct{}
}

// New returns a Lifecycle in the Starting state.  No signal handlers are
// installed until RegisterSignals is called.
func New(opts Options) *Lifecycle {
	l := &Lifecycle{
		stdout:   opts.Stdout,
		log:      opts.Logger,
		exit:     opts.Exit,
		reporter: opts.Reporter,
		results:  make(chan Result, 1),

		cleanupDone: make(chan struct{}),
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	if l.exit == nil {
		l.exit = os.Exit
	}
	if l.reporter == nil {
		l.reporter = NewCrashReporter(os.Stderr, false)
	}
	return l
}

func (l *Lifecycle) logger() *zap.Logger {
	if l.log != nil {
		return l.log
	}
	return zap.L()
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State { return State(l.state.Load()) }

// SetReporter replaces the crash reporter.  The composition root calls it
// once the command line has been parsed.
func (l *Lifecycle) SetReporter(r *CrashReporter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reporter = r
}

// Reporter returns the crash reporter in use.
func (l *Lifecycle) Reporter() *CrashReporter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reporter
}

// beginShutdown moves Starting or Running to ShuttingDown, recording cause
// when a signal is the reason.  It returns false if shutdown had already
// begun.
func (l *Lifecycle) beginShutdown(cause *Result) bool {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.State() >= ShuttingDown {
		return false
	}
	l.cause = cause
	l.state.Store(int32(ShuttingDown))
	return true
}

// start moves Starting to Running.  If shutdown began first, it returns
// false and the Result that began it.
func (l *Lifecycle) start() (Result, bool) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	switch l.State() {
	case Starting:
		l.state.Store(int32(Running))
		return Result{}, true
	case Running:
		return Result{}, true
	}
	if l.cause != nil {
		return *l.cause, false
	}
	return Terminate(ExitFailure), false
}

// OnExit registers fn as a deferred cleanup routine.  Routines run once, in
// reverse registration order, when the lifecycle shuts down.  A panicking
// routine is logged and does not stop the others.
//
// On the signal path cleanup runs while a main routine that ignores its
// context may still be executing, so cleanup must not assume main has
// stopped touching shared resources.
func (l *Lifecycle) OnExit(fn func()) {
	l.cleanupMu.Lock()
	defer l.cleanupMu.Unlock()
	l.cleanups = append(l.cleanups, fn)
}

// RunCleanup runs the registered cleanup routines.  Only the first call runs
// them; later calls wait until they have finished.
func (l *Lifecycle) RunCleanup() {
	if !l.cleanupStarted.CompareAndSwap(false, true) {
		<-l.cleanupDone
		return
	}
	defer close(l.cleanupDone)

	l.cleanupMu.Lock()
	fns := l.cleanups
	l.cleanups = nil
	l.cleanupMu.Unlock()

	var errs error
	for i := len(fns) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, callCleanup(fns[i]))
	}
	if errs != nil {
		l.logger().Error("cleanup failed", zap.Errors("errors", multierr.Errors(errs)))
	}
}

func callCleanup(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cleanup panicked: %v", p)
		}
	}()
	fn()
	return nil
}

// Run executes main and blocks until it returns, panics, or a tracked
// signal's handler asks to terminate.  Cleanup has run by the time Run
// returns the exit code.
//
// On a terminating signal Run does not wait for main: the context passed to
// main is cancelled and the caller is expected to Exit, which ends main
// wherever it is.  If a signal began shutdown before Run, main never starts.
//
// The logger carried in main's context routes Fatal through Exit.
func (l *Lifecycle) Run(ctx context.Context, main MainFunc) int {
	if r, ok := l.start(); !ok {
		l.RunCleanup()
		l.logger().Debug("shut down before main started", zap.Stringer("result", r))
		return r.Code()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = logger.NewContext(ctx, l.logger().WithOptions(zap.WithFatalHook(l.FatalHook())))

	done := make(chan Result, 1)
	go func() {
		done <- l.runMain(ctx, main)
	}()

	var r Result
	select {
	case r = <-done:
	case r = <-l.results:
		cancel()
	}
	l.beginShutdown(nil)
	l.RunCleanup()
	l.logger().Debug("main finished", zap.Stringer("result", r))
	return r.Code()
}

func (l *Lifecycle) runMain(ctx context.Context, main MainFunc) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			l.Reporter().Report(p, debug.Stack())
			r = Terminate(ExitPanic)
		}
	}()
	code, err := main(ctx)
	if err != nil {
		logger.L(ctx).Error("main routine failed", zap.Error(err))
		if code == 0 {
			code = ExitFailure
		}
	}
	return Terminate(code)
}

// Exit ends the process with code.  Cleanup runs first if Run has not
// already run it, and the logger is flushed.  If the crash reporter holds a
// pending post-mortem, it is triggered in place of a normal exit.
func (l *Lifecycle) Exit(code int) {
	l.beginShutdown(nil)
	l.RunCleanup()
	l.finish(code)
}

func (l *Lifecycle) finish(code int) {
	l.stateMu.Lock()
	l.state.Store(int32(Exited))
	l.stateMu.Unlock()
	l.logger().Debug("exiting", zap.Int("code", code))
	l.logger().Sync() //nolint:errcheck
	l.Reporter().PostMortem()
	l.exit(code)
}

// FatalHook returns a zap fatal hook that ends the process through Exit, so
// a Fatal log still runs cleanup.  A Fatal logged once cleanup has started
// exits immediately with ExitFailure.
func (l *Lifecycle) FatalHook() zapcore.CheckWriteHook {
	return fatalHook{l}
}

type fatalHook struct{ l *Lifecycle }

func (h fatalHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {
	if h.l.cleanupStarted.Load() {
		h.l.finish(ExitFailure)
		return
	}
	h.l.Exit(ExitFailure)
}

// RegisterSignals installs h for the tracked signals, replacing any handler
// installed earlier.  Handlers are not chained.
func (l *Lifecycle) RegisterSignals(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Notify the new channel before stopping the old one, so the tracked
	// signals never fall back to their default disposition in between.
	ch := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(ch, trackedSignals...)
	l.stopWatchLocked()
	l.sigC, l.stop, l.ignoring = ch, stop, false
	go l.watch(ch, stop, h)
}

// IgnoreSignals switches the tracked signals to the ignore policy.  No
// handler runs for them afterwards until RegisterSignals is called again.
func (l *Lifecycle) IgnoreSignals() {
	l.mu.Lock()
	defer l.mu.Unlock()
	signal.Ignore(trackedSignals...)
	l.stopWatchLocked()
	l.ignoring = true
}

// ResetSignals restores the default disposition of the tracked signals.
func (l *Lifecycle) ResetSignals() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopWatchLocked()
	signal.Reset(trackedSignals...)
	l.ignoring = false
}

// Ignoring reports whether the tracked signals are currently ignored.
func (l *Lifecycle) Ignoring() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ignoring
}

func (l *Lifecycle) stopWatchLocked() {
	if l.sigC == nil {
		return
	}
	signal.Stop(l.sigC)
	close(l.stop)
	l.sigC, l.stop = nil, nil
}

func (l *Lifecycle) watch(ch chan os.Signal, stop <-chan struct{}, h Handler) {
	for {
		select {
		case <-stop:
			return
		case sig := <-ch:
			r := h(sig)
			if !r.Terminated() {
				continue
			}
			l.mu.Lock()
			if l.sigC == ch {
				l.stopWatchLocked()
			}
			l.mu.Unlock()
			select {
			case l.results <- r:
			default:
			}
			return
		}
	}
}

// DefaultHandler switches the tracked signals to ignore, prints a shutdown
// notice with the process id, and terminates with the negated signal
// number.  A signal arriving after shutdown has begun yields Continue.
func (l *Lifecycle) DefaultHandler(sig os.Signal) Result {
	l.IgnoreSignals()
	n := signalNumber(sig)
	r := Terminate(-n)
	if !l.beginShutdown(&r) {
		l.logger().Debug("already shutting down, ignoring signal", zap.Stringer("signal", sig))
		return Continue()
	}
	l.logger().Debug("handling signal by just exiting", zap.Int("pid", os.Getpid()), zap.Stringer("signal", sig))
	fmt.Fprintf(l.stdout, "%d Received signal %d, exiting\n", os.Getpid(), n)
	return r
}
