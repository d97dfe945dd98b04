package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := New(tt.level, "text")
			if logger.GetLevel() != tt.want {
				t.Errorf("New(%q).GetLevel() = %v, want %v", tt.level, logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	logger := New("info", "json")
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.JSONFormatter", logger.Formatter)
	}
}

func TestComponent_TagsEntries(t *testing.T) {
	logger, hook := test.NewNullLogger()

	Component(logger, "health").Info("ready")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["component"] != "health" {
		t.Errorf("component field = %v, want health", entry.Data["component"])
	}
}

func TestComponent_NilLogger(t *testing.T) {
	// Must not panic.
	Component(nil, "advisor").Info("discarded")
}
