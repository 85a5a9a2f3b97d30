package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-query-cache/logging"
)

var _ logging.Logger = Logger{}

// Logger adapts a *logrus.Entry.
type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f logging.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f logging.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f logging.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f logging.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

// New wraps a fresh logrus logger at the given level. Unknown levels map to info.
func New(level string) Logger {
	base := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	return Logger{E: logrus.NewEntry(base)}
}
