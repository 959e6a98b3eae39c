package lifecycle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Crash describes a panic that escaped the main routine.
type Crash struct {
	Value any
	Stack []byte
	Time  time.Time
	// Path is where the crash report was written, if one was.
	Path string
}

// CrashReporter reports panics that escape the main routine.
//
// Without Debug it behaves like the Go runtime: the panic value and the
// goroutine trace go to Stderr and the process exits 2.  With Debug it
// prints a fuller trace and, when Stderr is a terminal and no debugger is
// already attached, prepares a post-mortem: a YAML crash report in Dir
// and, if CoreDump is set, an abort with a core file at Exit.  Runs without
// a terminal always get the default report and never block.
type CrashReporter struct {
	Debug    bool
	Stderr   io.Writer
	Dir      string
	CoreDump bool

	// IsTerminal reports whether Stderr is attached to a terminal.
	IsTerminal func() bool
	// Attached reports whether the process is already under a debugger.
	Attached func() bool

	abort func(c *Crash)

	mu      sync.Mutex
	pending *Crash
}

// NewCrashReporter returns a reporter writing to stderr whose terminal check
// inspects stderr's file descriptor.
func NewCrashReporter(stderr *os.File, debug bool) *CrashReporter {
	return &CrashReporter{
		Debug:  debug,
		Stderr: stderr,
		Dir:    os.TempDir(),
		IsTerminal: func() bool {
			fd := stderr.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
		Attached: debuggerAttached,
		abort:    abortWithCore,
	}
}

// Report handles a recovered panic value p with stack trace stack.
func (r *CrashReporter) Report(p any, stack []byte) {
	c := &Crash{Value: p, Stack: stack, Time: time.Now()}
	if !r.Debug || !r.interactive() {
		r.reportDefault(c)
		return
	}

	banner := color.New(color.FgRed, color.Bold)
	banner.Fprintf(r.Stderr, "unhandled panic: %v\n", p) //nolint:errcheck
	fmt.Fprintf(r.Stderr, "\n%s\n", stack)

	path, err := r.writeReport(c)
	if err != nil {
		zap.L().Error("write crash report", zap.Error(err))
	} else {
		c.Path = path
		fmt.Fprintf(r.Stderr, "crash report written to %s\n", path)
	}
	if r.CoreDump {
		fmt.Fprintln(r.Stderr, "aborting with a core dump; inspect it with `dlv core`")
	}

	r.mu.Lock()
	r.pending = c
	r.mu.Unlock()
}

func (r *CrashReporter) interactive() bool {
	if r.IsTerminal == nil || !r.IsTerminal() {
		return false
	}
	return r.Attached == nil || !r.Attached()
}

func (r *CrashReporter) reportDefault(c *Crash) {
	fmt.Fprintf(r.Stderr, "panic: %v\n\n%s", c.Value, c.Stack)
}

// Pending returns the crash awaiting post-mortem, or nil.
func (r *CrashReporter) Pending() *Crash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// PostMortem triggers the core dump for a pending crash when CoreDump is
// set.  It is called last, after cleanup, and is a no-op otherwise.
func (r *CrashReporter) PostMortem() {
	c := r.Pending()
	if c == nil || !r.CoreDump {
		return
	}
	if err := enableCoreDumps(); err != nil {
		zap.L().Warn("raise core size limit", zap.Error(err))
	}
	abort := r.abort
	if abort == nil {
		abort = abortWithCore
	}
	abort(c)
}

// crashReport is the on-disk form of a Crash.
type crashReport struct {
	Time      time.Time `yaml:"time"`
	PID       int       `yaml:"pid"`
	Args      []string  `yaml:"args"`
	GoVersion string    `yaml:"go_version"`
	GOOS      string    `yaml:"goos"`
	GOARCH    string    `yaml:"goarch"`
	Panic     string    `yaml:"panic"`
	Stack     string    `yaml:"stack"`
}

func (r *CrashReporter) writeReport(c *Crash) (string, error) {
	dir := r.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(crashReport{
		Time:      c.Time.UTC(),
		PID:       os.Getpid(),
		Args:      os.Args,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		Panic:     fmt.Sprint(c.Value),
		Stack:     string(c.Stack),
	})
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	name := fmt.Sprintf("crash-%d-%s.yaml", os.Getpid(), c.Time.UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// abortWithCore re-raises the crash with GOTRACEBACK=crash, so the runtime
// dumps every goroutine and aborts with SIGABRT, leaving a core file where
// the OS permits one.
func abortWithCore(c *Crash) {
	debug.SetTraceback("crash")
	panic(fmt.Sprintf("post-mortem: %v", c.Value))
}
