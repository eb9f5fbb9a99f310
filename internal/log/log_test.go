package log

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = With(ctx, zap.String("run", "r1"))

	Logger(ctx).Info("composite built")
	Logger(ctx).Debug("dropped")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["run"] != "r1" {
		t.Fatalf("missing run field: %v", entries[0].ContextMap())
	}
}

func TestLoggerFallsBackToProcessLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Logger(context.Background()).Warn("empty composite")
	if logs.Len() != 1 {
		t.Fatalf("expected process logger to receive the entry")
	}
}

func TestInitRejectsUnknownValues(t *testing.T) {
	if _, err := Init("loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := Init("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
	l, err := Init("debug", "console")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { SetLogger(nil) })
	if !l.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}
}
