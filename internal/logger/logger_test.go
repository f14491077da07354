package logger

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"TRACE": logrus.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := parseLevel(in); got != want {
				t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
			}
		})
	}
}

func TestNew_JSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")

	l := New()
	if _, ok := l.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter, got %T", l.Logger.Formatter)
	}
	if l.Logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", l.Logger.GetLevel())
	}
}

func TestWithRunAndError(t *testing.T) {
	base := Nop()

	e := WithRun(base, "r1", "tts")
	if e.Data["run_id"] != "r1" || e.Data["stage"] != "tts" {
		t.Fatalf("unexpected fields: %v", e.Data)
	}
	if got := WithError(e, errors.New("boom")).Data["error"]; got != "boom" {
		t.Fatalf("unexpected error field: %v", got)
	}
	if WithError(base, nil) != base {
		t.Fatalf("expected nil error to return the base entry")
	}
}
