// Package boxxylog wraps logrus in a small, nil-friendly logger, shaped
// after the teacher's DebugLogger: a struct around an io.Writer/level, safe
// to hold as a nil pointer, enabled/disabled rather than configured through
// a dozen options.
package boxxylog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger emits the enclosure engine's required diagnostic lines at info
// level and per-rule skip diagnostics at warn level. A nil *Logger is valid
// and logs nothing, so callers that don't want logging can pass one
// through without a branch at every call site.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to out. verbose raises the level to Debug, so
// lines logged through Debugf are shown; otherwise the level is Info. The
// supervisor's lines arrive through AsLogf at info level, so no
// canonicalization or mount steps are logged at debug level.
func New(out io.Writer, verbose bool) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})

	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// Infof logs a required diagnostic line ("loaded N rules", "applying rule
// '<name>'", "redirect: <target> -> <rewrite>", "boxed '<program>'").
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}

	l.entry.Infof(format, args...)
}

// Debugf logs a step only shown with --verbose.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}

	l.entry.Debugf(format, args...)
}

// Warnf logs a recoverable per-rule diagnostic (ConfigError, PathError,
// MountError): the offending rule is skipped and the invocation continues.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}

	l.entry.Warnf(format, args...)
}

// Errorf logs a fatal condition just before the supervisor exits non-zero.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}

	l.entry.Errorf(format, args...)
}

// AsLogf adapts l to the boxxy.Logf signature the supervisor expects,
// logging everything at info level (callers wanting level distinctions use
// the typed methods directly and pass nil as the supervisor's Logf).
func (l *Logger) AsLogf() func(format string, args ...any) {
	return func(format string, args ...any) {
		l.Infof(format, args...)
	}
}
