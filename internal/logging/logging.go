// Package logging builds the single shared logrus.Logger every
// component is constructed with, so every line is tagged with
// structured fields (endpoint, group, connection_id, status) instead
// of freeform text.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls the logger's verbosity and output sink.
type Options struct {
	Level  string // "debug", "info", "warn", "error"; default "info"
	Output io.Writer
	JSON   bool
}

// New builds a configured logrus.Logger. Unknown levels fall back to
// Info rather than failing startup over a cosmetic setting.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l
}
