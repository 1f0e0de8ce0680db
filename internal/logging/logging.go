// Package logging builds the process logger and adapts it to the libraries
// that bring their own logging interface.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stderr.  format "json" or "text"
// wins; an empty format picks text for the dev environment and JSON for
// everything else.
func New(env, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch {
	case strings.EqualFold(format, "text"),
		format == "" && strings.EqualFold(env, "dev"):
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
