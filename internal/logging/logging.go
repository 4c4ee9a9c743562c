package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to out at the named level. Unknown
// levels fall back to info. JSON output is meant for the server, text for
// the command line.
func New(out io.Writer, level string, json bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return l
}
