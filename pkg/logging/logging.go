// Package logging provides the logging interface used throughout webserv. It
// bridges logrus into a narrow contract so that components never depend on
// the concrete logger implementation.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used by every component. It is satisfied by
// *logrus.Logger and *logrus.Entry.
type Logger interface {
	logrus.FieldLogger
	// Writer returns a pipe writer suitable for redirecting a subprocess's
	// stdout/stderr into the logger, one line at a time.
	Writer() *io.PipeWriter
}

// New creates a root Logger writing to os.Stderr in text format at logrus's
// default Info level; callers raise it with SetLevel (cmd/webserv does so
// for its --debug flag).
func New() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
