package obs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const logFilePerm = 0o664

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// LogConfig selects the sinks and minimum level of the process logger.
type LogConfig struct {
	Level   string // debug, info, warn, error, fatal
	Console bool   // human readable output on stderr
	JSON    bool   // JSON lines on stdout
	File    string // append-only JSON file
}

// Logger returns a copy of the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

// SetLogger replaces the shared logger and returns a function restoring the previous one.
func SetLogger(l zerolog.Logger) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// Configure builds the shared logger from cfg. The returned closer releases the log file, if any.
func Configure(cfg LogConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var (
		sinks  []io.Writer
		closer io.Closer = nopCloser{}
	)
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.JSON {
		sinks = append(sinks, os.Stdout)
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		sinks = append(sinks, zerolog.SyncWriter(f))
		closer = f
	}
	if len(sinks) == 0 {
		sinks = append(sinks, os.Stdout)
	}

	l := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	SetLogger(l)
	return closer, nil
}

// ParseLevel maps the configured level names onto zerolog levels. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
