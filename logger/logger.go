// Package logger configures the process-wide zap logger and provides
// context-based access to it.
//
// Lines have the form
//
//	[2006-01-02 15:04:05,000] [INFO] message {"key": "value"}
package logger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the diagnostics configuration.
type Options struct {
	// Level is the severity threshold.  The zero value is InfoLevel.
	Level zapcore.Level
	// Output receives log lines.  Defaults to os.Stderr.
	Output zapcore.WriteSyncer
	// File, if set, additionally writes log lines to a rotated file.
	File string
	// MaxSizeMB is the size at which File is rotated.  Defaults to 10.
	MaxSizeMB int
	// FatalHook, if set, runs after a Fatal entry is written in place of
	// os.Exit.
	FatalHook zapcore.CheckWriteHook
}

// rotator is the rotated file sink installed by the last Configure.
var (
	rotatorMu sync.Mutex
	rotator   *rotatingFile
)

type rotatingFile struct {
	*lumberjack.Logger
	closed bool
}

func (f *rotatingFile) Close() error {
	f.closed = true
	return f.Logger.Close()
}

const timeLayout = "2006-01-02 15:04:05,000"

// EncoderConfig returns the console encoder configuration producing
// "[timestamp] [LEVEL] message" lines.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(timeLayout) + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// Configure builds a logger from opts and installs it as the zap global,
// replacing whatever an earlier call installed.  Calling it again with a
// different level leaves only the new level in effect, and closes the file
// opened by the earlier call.
func Configure(opts Options) *zap.Logger {
	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}
	enc := zapcore.NewConsoleEncoder(EncoderConfig())
	core := zapcore.NewCore(enc, out, opts.Level)
	var rf *rotatingFile
	if opts.File != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 10
		}
		rf = &rotatingFile{Logger: &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    size,
			MaxBackups: 3,
			MaxAge:     28,
		}}
		core = zapcore.NewTee(core, zapcore.NewCore(enc, zapcore.AddSync(rf), opts.Level))
	}
	var zopts []zap.Option
	if opts.FatalHook != nil {
		zopts = append(zopts, zap.WithFatalHook(opts.FatalHook))
	}
	l := zap.New(core, zopts...)
	zap.ReplaceGlobals(l)

	rotatorMu.Lock()
	prev := rotator
	rotator = rf
	rotatorMu.Unlock()
	if prev != nil {
		prev.Close() //nolint:errcheck
	}
	return l
}

// ParseLevel converts a level name (debug, info, warn, error, ...) to a
// zapcore.Level.  The empty string is InfoLevel.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying log.
func NewContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// L returns the logger stored in ctx, falling back to zap.L().
func L(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && log != nil {
		return log
	}
	return zap.L()
}
