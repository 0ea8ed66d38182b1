package logger

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCallerPointsAtCallSite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Log
	Log = newLogger(core)
	defer func() { Log = prev }()

	Info("Wrapped call")
	GetLogger().Info("Direct call", zap.String("component", "ratelimit"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if !e.Caller.Defined {
			t.Fatalf("%q has no caller", e.Message)
		}
		if file := filepath.Base(e.Caller.File); file != "logger_test.go" {
			t.Errorf("%q caller = %s, want logger_test.go", e.Message, file)
		}
	}
}

func TestInitRejectsBadSettings(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	if err := Init("loud", "json", "stdout"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Init("info", "xml", "stdout"); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Init("debug", "console", "stderr"); err != nil {
		t.Fatalf("Init: %v", err)
	}
}
