// Package debug provides the updater's verbose diagnostic logging.
// It is enabled by the HELIUM_UPDATER_DEBUG environment variable or the
// --debug flag and writes to <home>/logs/updater.log. Enabling it changes
// what gets logged, never what the updater does.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// EnvVar enables verbose logging when set to any non-empty value.
const EnvVar = "HELIUM_UPDATER_DEBUG"

const logFileName = "updater.log"

var (
	mu      sync.RWMutex
	logger  = log.New(io.Discard)
	logFile *os.File
)

// LogPath returns the debug log location under home.
func LogPath(home string) string {
	return filepath.Join(home, "logs", logFileName)
}

// EnvEnabled reports whether the environment requests verbose logging.
func EnvEnabled() bool {
	return os.Getenv(EnvVar) != ""
}

// Init configures the package logger. When neither verbose nor EnvVar is
// set all logging becomes a no-op. Otherwise the log file under home is
// opened for append and debug-level output is enabled.
func Init(home string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	if !verbose && !EnvEnabled() {
		logger = log.New(io.Discard)
		return nil
	}

	path := LogPath(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}

	l := log.New(f)
	l.SetLevel(log.DebugLevel)
	l.SetReportTimestamp(true)
	logFile = f
	logger = l
	return nil
}

// Close releases the log file. Safe to call when logging is disabled.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	logger = log.New(io.Discard)
}

// Log returns the shared logger. Callers may use key-value pairs as with
// any charmbracelet/log logger.
func Log() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugf logs a formatted debug line.
func Debugf(format string, args ...any) {
	Log().Debugf(format, args...)
}

// Warnf logs a formatted warning line.
func Warnf(format string, args ...any) {
	Log().Warnf(format, args...)
}
