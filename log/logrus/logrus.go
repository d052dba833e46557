// Package logrus adapts a *logrus.Entry to opscache.Logger.
package logrus

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/opscache"
)

var _ opscache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New returns a JSON logger writing to w at level.
func New(w io.Writer, level string) (LogrusLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return LogrusLogger{}, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{})
	return LogrusLogger{E: logrus.NewEntry(l).WithField("component", "opscache")}, nil
}

func (l LogrusLogger) Debug(msg string, f opscache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f opscache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f opscache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f opscache.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus' own error key.
func (l LogrusLogger) with(f opscache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
