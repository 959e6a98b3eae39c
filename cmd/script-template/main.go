// script-template: a starting point for command-line programs.
//
// It shows how to parse command-line arguments, how to handle signals, how
// to clean up before the program exits (especially if it exits early), and
// how to get a post-mortem when something panics.  Replace hello with real
// code.
//
// Usage:
//
//	script-template [--debug]
//
// With --debug, logging drops to debug level and a panic on a terminal
// writes a crash report (and, if configured, a core dump).  Settings such
// as a log file are read from the YAML file named by
// $SCRIPT_TEMPLATE_CONFIG.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	lifecycle "github.com/cptaffe/script-template"
	"github.com/cptaffe/script-template/config"
	"github.com/cptaffe/script-template/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	lc := lifecycle.New(lifecycle.Options{})
	lc.OnExit(cleanupAtExit)
	lc.RegisterSignals(lc.DefaultHandler)

	code := lifecycle.ExitSuccess
	app := newApp(lc, os.Stdout, os.Stderr, &code)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "script-template: %v\n", err)
		code = 2
	}
	lc.Exit(code)
}

// cleanupAtExit holds cleanup that must happen if the program exits early.
func cleanupAtExit() {
	zap.L().Debug("cleaning up")
}

// newApp builds the command line.  The action runs hello under lc and
// stores the exit code in code.
func newApp(lc *lifecycle.Lifecycle, stdout io.Writer, stderr *os.File, code *int) *cli.App {
	var debug bool
	return &cli.App{
		Name:      "script-template",
		Usage:     "command line script template",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "debug",
				Aliases:     []string{"d"},
				Usage:       "debug logging, and a crash report on unhandled panics",
				Destination: &debug,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := configureDiagnostics(lc, cfg, debug); err != nil {
				return err
			}
			lc.SetReporter(lifecycle.ReporterFromConfig(cfg, debug, stderr))
			*code = lc.Run(c.Context, hello(stdout))
			return nil
		},
	}
}

// configureDiagnostics installs the configured level, then replaces it
// with debug level when asked.  Fatal logs end the process through lc.
func configureDiagnostics(lc *lifecycle.Lifecycle, cfg *config.Config, debug bool) error {
	opts, err := lifecycle.LoggerOptions(cfg, false)
	if err != nil {
		return err
	}
	opts.FatalHook = lc.FatalHook()
	logger.Configure(opts)
	if debug {
		opts, err = lifecycle.LoggerOptions(cfg, true)
		if err != nil {
			return err
		}
		opts.FatalHook = lc.FatalHook()
		logger.Configure(opts)
	}
	return nil
}

// iterations is the length of hello's busy loop.
var iterations = 100_000_000

// hello is the main routine.  Replace it with real code.
func hello(stdout io.Writer) lifecycle.MainFunc {
	return func(ctx context.Context) (int, error) {
		fmt.Fprintln(stdout, "hello, world!")
		fmt.Fprintln(stdout, "taking some time so you can try hitting ctrl-c")
		accum := 0
		for i := 0; i < iterations; i++ {
			accum += 4
		}
		logger.L(ctx).Debug("got to the end", zap.Int("accum", accum))
		return 0, nil
	}
}
