// Package logging provides the structured logger used across the session,
// supervisor, worker, and queue worker loop. It wraps logrus the way
// comparable Go frameworks in the retrieval pack do, so every subsystem
// logs through the same Fields-based API.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a configured *logrus.Logger with key/value helpers.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"; unknown values default to "info") and format ("json" or
// "text"; unknown values default to "text").
func New(level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	switch level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l}
}

// Nop returns a Logger that discards all output, for use in tests.
func Nop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: l}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.WithFields(parseFields(keysAndValues...)).Debug(msg)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.WithFields(parseFields(keysAndValues...)).Info(msg)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.WithFields(parseFields(keysAndValues...)).Warn(msg)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.WithFields(parseFields(keysAndValues...)).Error(msg)
}

func parseFields(keysAndValues ...interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
