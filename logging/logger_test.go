package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/config"
)

func TestNewLoggerCachesPerComponent(t *testing.T) {
	t.Setenv("NICEPICK_HOME", t.TempDir())
	t.Cleanup(reset)

	a := NewLogger("picker")
	b := NewLogger("picker")
	c := NewLogger("client")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "picker", a.Data["component"])
}

func TestTextFormatter(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		config  FormatConfig
		data    logrus.Fields
		level   logrus.Level
		want    []string
		notWant []string
	}{
		{
			name:   "default",
			config: FormatConfig{},
			data:   logrus.Fields{"component": "daemon", "session": "abc"},
			level:  logrus.InfoLevel,
			want:   []string{"2026-03-01 10:04:05.000", "[INFO]", "[daemon]", "Daemon ready", "session=abc"},
		},
		{
			name:    "no timestamp or component",
			config:  FormatConfig{DisableTimestamp: true, DisableComponent: true},
			data:    logrus.Fields{"component": "daemon"},
			level:   logrus.InfoLevel,
			want:    []string{"[INFO] Daemon ready"},
			notWant: []string{"2026-03-01", "[daemon]"},
		},
		{
			name:   "warning shortened",
			config: FormatConfig{DisableTimestamp: true},
			data:   logrus.Fields{},
			level:  logrus.WarnLevel,
			want:   []string{"[WARN]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Data:    tt.data,
				Time:    ts,
				Level:   tt.level,
				Message: "Daemon ready",
			}
			out, err := (&TextFormatter{Config: tt.config}).Format(entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
		})
	}
}

func TestTextFormatterFieldOrder(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Data:    logrus.Fields{"zeta": 1, "alpha": 2, "mid": 3},
		Message: "m",
	}
	out, err := (&TextFormatter{Config: FormatConfig{DisableTimestamp: true}}).Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "m alpha=2 mid=3 zeta=1\n")
}

func TestTextFormatterCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetReportCaller(true)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{DisableTimestamp: true}})

	logger.Info("with caller")
	_, file, _, _ := runtime.Caller(0)
	assert.Contains(t, buf.String(), filepath.Base(file))
}

func TestNewLoggerLevels(t *testing.T) {
	t.Run("config level", func(t *testing.T) {
		entry := newLogger("picker", Config{Level: "warn", Format: FormatConfig{StructuredToStderr: "never"}})
		assert.Equal(t, logrus.WarnLevel, entry.Logger.GetLevel())
	})

	t.Run("env overrides config", func(t *testing.T) {
		t.Setenv(LevelEnv, "debug")
		entry := newLogger("picker", Config{Level: "warn", Format: FormatConfig{StructuredToStderr: "never"}})
		assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())
	})

	t.Run("invalid falls back to info", func(t *testing.T) {
		entry := newLogger("picker", Config{Level: "loud", Format: FormatConfig{StructuredToStderr: "never"}})
		assert.Equal(t, logrus.InfoLevel, entry.Logger.GetLevel())
	})

	t.Run("caller env", func(t *testing.T) {
		t.Setenv(CallerEnv, "true")
		entry := newLogger("picker", Config{Format: FormatConfig{StructuredToStderr: "never"}})
		assert.True(t, entry.Logger.ReportCaller)
	})

	t.Run("json preset", func(t *testing.T) {
		entry := newLogger("picker", Config{Format: FormatConfig{Preset: "json", StructuredToStderr: "never"}})
		assert.IsType(t, &logrus.JSONFormatter{}, entry.Logger.Formatter)
	})
}

func TestStderrSink(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	t.Cleanup(func() { SetGlobalOutput(os.Stderr) })

	entry := newLogger("picker", Config{Format: FormatConfig{StructuredToStderr: "always", DisableTimestamp: true}})
	entry.Info("to stderr")
	assert.Contains(t, buf.String(), "to stderr")

	buf.Reset()
	entry = newLogger("picker", Config{Format: FormatConfig{StructuredToStderr: "never"}})
	entry.Info("dropped")
	assert.Empty(t, buf.String())
}

func TestDaemonComponentsLogToFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NICEPICK_HOME", home)

	entry := newLogger("daemon.server", Config{Format: FormatConfig{StructuredToStderr: "never"}})
	entry.Info("accepted connection")

	data, err := os.ReadFile(DefaultLogFile("daemon.server", time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "accepted connection")
	assert.Contains(t, DefaultLogFile("daemon", time.Now()), filepath.Join(home, "state", "nicepick", "logs"))
}

func TestFileSinkExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "picker.log")
	entry := newLogger("picker", Config{
		File:   FileSinkConfig{Enabled: true, Path: path},
		Format: FormatConfig{StructuredToStderr: "never"},
	})
	entry.Warn("low on glyphs")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "low on glyphs")
}

func TestReopeningWriterRecreatesRemovedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	w := newReopeningWriter(path)
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))
}

func TestSetLevel(t *testing.T) {
	t.Setenv("NICEPICK_HOME", t.TempDir())
	t.Cleanup(reset)

	entry := NewLogger("daemon")
	require.NoError(t, SetLevel("error"))
	assert.Equal(t, logrus.ErrorLevel, entry.Logger.GetLevel())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, logrus.InfoLevel, entry.Logger.GetLevel())

	assert.Error(t, SetLevel("shouting"))
}

func TestLoggingSectionFromConfig(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(`
logging:
  level: debug
  format:
    preset: simple
`), config.FormatYAML)
	require.NoError(t, err)

	var logCfg Config
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "simple", logCfg.Format.Preset)
}

func TestLoggingSectionRejectsUnknownKeys(t *testing.T) {
	_, err := config.LoadFromBytes([]byte(`
logging:
  verbosity: 3
`), config.FormatYAML)
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole().WithWriter(&buf)
	c.Success("daemon started")
	c.Field("state", "idle")
	c.Error("stop failed", os.ErrNotExist)

	out := buf.String()
	assert.Contains(t, out, "daemon started")
	assert.Contains(t, out, "state:")
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "file does not exist")
}
