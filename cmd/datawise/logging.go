package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/pkg/logctx"
)

const appName = "datawise"

// logSink owns the log file so it can be reopened after external rotation.
type logSink struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	level slog.Leveler
}

// newLogSink resolves cfg.File. An empty value logs to stderr and a relative
// one is placed under defaultLogDir.
func newLogSink(cfg config.LogConfig) *logSink {
	s := &logSink{level: parseLevel(cfg.Level, slog.LevelInfo)}
	if cfg.File != "" {
		s.path = cfg.File
		if !filepath.IsAbs(s.path) {
			s.path = filepath.Join(defaultLogDir(), s.path)
		}
	}
	return s
}

// install opens the sink and makes it the default slog logger.
func (s *logSink) install() {
	slog.SetDefault(logctx.WrapLogger(s.open()))
}

// reopen closes the current file and installs a fresh handle.
func (s *logSink) reopen() {
	s.install()
	slog.Info("log file reopened", slog.String("path", s.path))
}

func (s *logSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *logSink) open() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if s.path == "" {
		return stderrLogger(s.level)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return stderrLogger(s.level)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return stderrLogger(s.level)
	}
	s.file = f

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: s.level})
	return slog.New(h).With(slog.String("app", appName))
}

func stderrLogger(level slog.Leveler) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(slog.String("app", appName))
}

func parseLevel(s string, def slog.Level) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return def
	}
}

func defaultLogDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" && home != "" {
		return filepath.Join(home, "Library", "Logs", appName)
	}
	if home != "" {
		return filepath.Join(home, ".local", "state", appName)
	}
	return filepath.Join(os.TempDir(), appName)
}
