// Package log is the structured logging front for the importer. It wraps a
// single logrus logger that writes to stderr; debug mode lowers the level so
// chunk-by-chunk upload traffic and stream selection become visible.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Setup configures output and verbosity. Debug enables debug-level entries;
// otherwise only warnings and errors are written.
func Setup(w io.Writer, debug bool) {
	if w == nil {
		w = os.Stderr
	}
	logger.SetOutput(w)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	logger.SetLevel(logrus.WarnLevel)
}

// WithFields starts an entry carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// WithField starts an entry carrying one field.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }

// DebugEnabled reports whether debug entries are being written.
func DebugEnabled() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}
