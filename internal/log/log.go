// Package log is the application-wide structured logging facade. It keeps
// call sites independent of the backing library: key-value pairs in, console
// or JSON lines out.
package log

import (
	"os"

	charm "github.com/charmbracelet/log"
)

var logger = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
})

// Configure sets the global log level (trace, debug, info, warn, error) and
// output format (console or json). Unknown values fall back to info/console.
func Configure(level, format string) {
	lvl, err := charm.ParseLevel(level)
	if err != nil {
		lvl = charm.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(charm.JSONFormatter)
	} else {
		logger.SetFormatter(charm.TextFormatter)
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, keyvals ...interface{}) { logger.Debug(msg, keyvals...) }

// Info logs an informational message with optional key-value pairs.
func Info(msg string, keyvals ...interface{}) { logger.Info(msg, keyvals...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, keyvals ...interface{}) { logger.Warn(msg, keyvals...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, keyvals ...interface{}) { logger.Error(msg, keyvals...) }

// Fatal logs an error message and exits the process.
func Fatal(msg string, keyvals ...interface{}) { logger.Fatal(msg, keyvals...) }
