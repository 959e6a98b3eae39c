package lifecycle

import (
	"os"

	"github.com/cptaffe/script-template/config"
	"github.com/cptaffe/script-template/logger"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions translates cfg into logger options.  debug forces
// DebugLevel regardless of cfg.LogLevel.
func LoggerOptions(cfg *config.Config, debug bool) (logger.Options, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logger.Options{}, err
	}
	if debug {
		level = zapcore.DebugLevel
	}
	return logger.Options{
		Level:     level,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	}, nil
}

// ReporterFromConfig returns the crash reporter described by cfg, writing
// to stderr.
func ReporterFromConfig(cfg *config.Config, debug bool, stderr *os.File) *CrashReporter {
	r := NewCrashReporter(stderr, debug)
	if cfg.CrashDir != "" {
		r.Dir = cfg.CrashDir
	}
	r.CoreDump = cfg.CoreDump
	return r
}
