// Package logging wires Rover's components to charmbracelet/log.
//
// Everything logs to stderr; stdout is reserved for command output such as
// ticket listings, plans, and PR URLs. Components obtain a prefixed child
// logger via New:
//
//	var logger = logging.New("scan")
//	logger.Info("scanner finished", "agent", "security", "candidates", 4)
//
// Setup must run before any New call (the CLI does this in its persistent
// pre-run). charmbracelet/log copies level and formatter state into child
// loggers at creation time, so late Setup calls do not reach children that
// already exist.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Level aliases so callers do not import charmbracelet/log for level checks.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
	LevelFatal = log.FatalLevel
)

// Setup configures the process-wide logging defaults.
//
// verbose lowers the level to Debug; quiet raises it to Error and wins over
// verbose so scripted invocations stay silent no matter what else is set.
// jsonFormat switches to NDJSON output for log aggregation.
func Setup(verbose, quiet, jsonFormat bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if jsonFormat {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}

// New returns a logger prefixed with the given component name. An empty
// component produces an unprefixed logger.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// Nop returns a logger that discards everything. Handy as a default when a
// constructor receives a nil logger.
func Nop() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// SetOutput redirects the default logger, mainly so tests can capture output
// in a bytes.Buffer. Restore the original writer in t.Cleanup.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
