package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// restoreGlobals puts back the zap global logger after a test replaces it.
func restoreGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })
}

func TestConfigureFormat(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	l := Configure(Options{Level: zapcore.InfoLevel, Output: zapcore.AddSync(&buf)})

	l.Info("hello")
	l.Warn("with field", zap.String("k", "v"))

	lines := regexp.MustCompile(`(?m)^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3}\] \[(INFO|WARN)\] (.*)$`).
		FindAllStringSubmatch(buf.String(), -1)
	require.Len(t, lines, 2, "output: %q", buf.String())
	assert.Equal(t, "INFO", lines[0][1])
	assert.Equal(t, "hello", lines[0][2])
	assert.Equal(t, "WARN", lines[1][1])
	assert.Equal(t, `with field {"k": "v"}`, lines[1][2])
}

func TestConfigureReplacesGlobal(t *testing.T) {
	restoreGlobals(t)
	var first, second bytes.Buffer

	Configure(Options{Level: zapcore.DebugLevel, Output: zapcore.AddSync(&first)})
	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))

	Configure(Options{Level: zapcore.WarnLevel, Output: zapcore.AddSync(&second)})
	assert.False(t, zap.L().Core().Enabled(zapcore.DebugLevel))
	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zapcore.WarnLevel))

	zap.L().Warn("only once")
	assert.Empty(t, first.String(), "earlier configuration must not stay layered")
	assert.Contains(t, second.String(), "only once")
}

func TestConfigureLevelFiltering(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	l := Configure(Options{Output: zapcore.AddSync(&buf)})

	l.Debug("should be filtered")
	l.Info("should appear")

	assert.NotContains(t, buf.String(), "should be filtered")
	assert.Contains(t, buf.String(), "should appear")
}

func TestConfigureFile(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "script.log")

	l := Configure(Options{Level: zapcore.InfoLevel, Output: zapcore.AddSync(&buf), File: path})
	l.Info("to both")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] to both")
	assert.Contains(t, buf.String(), "[INFO] to both")
}

func TestConfigureClosesPreviousFile(t *testing.T) {
	restoreGlobals(t)
	dir := t.TempDir()
	t.Cleanup(func() {
		rotatorMu.Lock()
		defer rotatorMu.Unlock()
		if rotator != nil {
			rotator.Close() //nolint:errcheck
			rotator = nil
		}
	})

	cases := []struct {
		name string
		file string
	}{
		{"same_file", "script.log"},
		{"other_file", "other.log"},
		{"no_file", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			Configure(Options{Output: zapcore.AddSync(&bytes.Buffer{}), File: filepath.Join(dir, "script.log")})
			zap.L().Info("first")
			rotatorMu.Lock()
			first := rotator
			rotatorMu.Unlock()
			require.NotNil(t, first)

			file := c.file
			if file != "" {
				file = filepath.Join(dir, file)
			}
			Configure(Options{Output: zapcore.AddSync(&bytes.Buffer{}), File: file})

			rotatorMu.Lock()
			defer rotatorMu.Unlock()
			assert.True(t, first.closed, "replaced file must be closed")
			if c.file == "" {
				assert.Nil(t, rotator)
			} else {
				require.NotNil(t, rotator)
				assert.NotSame(t, first, rotator)
				assert.False(t, rotator.closed)
			}
		})
	}
}

type recordingHook struct{ entries []string }

func (h *recordingHook) OnWrite(ce *zapcore.CheckedEntry, _ []zapcore.Field) {
	h.entries = append(h.entries, ce.Message)
}

func TestConfigureFatalHook(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	hook := &recordingHook{}
	l := Configure(Options{Output: zapcore.AddSync(&buf), FatalHook: hook})

	l.Fatal("going down")
	assert.Equal(t, []string{"going down"}, hook.entries)
	assert.Contains(t, buf.String(), "[FATAL] going down")

	zap.L().Fatal("via global")
	assert.Equal(t, []string{"going down", "via global"}, hook.entries)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestContextLogger(t *testing.T) {
	restoreGlobals(t)
	global := zap.NewNop()
	zap.ReplaceGlobals(global)
	assert.Same(t, global, L(context.Background()), "falls back to zap.L()")

	l := zap.NewExample()
	assert.Same(t, l, L(NewContext(context.Background(), l)))
	assert.Same(t, global, L(NewContext(context.Background(), nil)))
}
