// Package logger provides leveled, structured logging for shoebox.
// It wraps hclog so every component logs key/value pairs through the
// same root logger.
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root = hclog.New(&hclog.LoggerOptions{
		Name:   "shoebox",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
)

// SetLevel adjusts the level of the root logger. Unknown levels fall
// back to info.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(parseLevel(level))
}

func parseLevel(level string) hclog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return hclog.Trace
	case "debug":
		return hclog.Debug
	case "warn":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Named returns a sub-logger for a component.
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}

// Info logs an informational message with key/value pairs.
func Info(msg string, args ...interface{}) {
	root.Info(msg, args...)
}

// Warn logs a warning with key/value pairs.
func Warn(msg string, args ...interface{}) {
	root.Warn(msg, args...)
}

// Error logs an error with key/value pairs.
func Error(msg string, args ...interface{}) {
	root.Error(msg, args...)
}

// Debug logs a debug message with key/value pairs.
func Debug(msg string, args ...interface{}) {
	root.Debug(msg, args...)
}
