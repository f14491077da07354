package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Entry
}

// New builds the process logger. Local runs get colored text, anything else
// gets JSON lines.
func New() *Logger {
	base := logrus.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     os.Getenv("NO_COLOR") == "",
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(os.Stderr)
	base.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))

	return &Logger{Entry: logrus.NewEntry(base)}
}

// Nop discards everything. Meant for tests and library callers that pass no logger.
func Nop() *logrus.Entry {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return logrus.NewEntry(base)
}

// WithRun tags every line with the run and stage it belongs to.
func WithRun(e *logrus.Entry, runID, stage string) *logrus.Entry {
	return e.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  stage,
	})
}

// WithError standardizes error logging
func WithError(e *logrus.Entry, err error) *logrus.Entry {
	if err == nil {
		return e
	}
	return e.WithField("error", err.Error())
}

func parseLevel(s string) logrus.Level {
	switch s {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
