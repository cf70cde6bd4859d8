package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/telemetry"
)

func TestNewNopProvider(t *testing.T) {
	p := telemetry.NewNopProvider()

	if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
		t.Fatalf("NewNopProvider() left a provider nil: %+v", p)
	}
	if p.Logger == nil {
		t.Fatal("Logger is nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestSetup_NoEndpoint(t *testing.T) {
	_, err := telemetry.Setup(context.Background(), config.TelemetryConfig{ServiceName: "auctionhouse"})
	if !errors.Is(err, telemetry.ErrNoEndpoint) {
		t.Fatalf("Setup() error = %v, want ErrNoEndpoint", err)
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestTraceHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(telemetry.NewTraceHandler(&buf, slog.LevelInfo))

	logger.InfoContext(context.Background(), "listing created", slog.String("auction_id", "a1"))

	rec := decodeLine(t, &buf)
	if rec["auction_id"] != "a1" {
		t.Errorf("auction_id = %v, want a1", rec["auction_id"])
	}
	if _, ok := rec["trace_id"]; ok {
		t.Error("trace_id set without a span")
	}
}

func TestTraceHandler_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "Service.Purchase")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(telemetry.NewTraceHandler(&buf, slog.LevelInfo)).With(slog.String("component", "auction"))
	logger.InfoContext(ctx, "purchase completed")

	rec := decodeLine(t, &buf)
	sc := span.SpanContext()
	if rec["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", rec["trace_id"], sc.TraceID())
	}
	if rec["span_id"] != sc.SpanID().String() {
		t.Errorf("span_id = %v, want %s", rec["span_id"], sc.SpanID())
	}
	if rec["component"] != "auction" {
		t.Errorf("component = %v, want auction", rec["component"])
	}
}

func TestTraceHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(telemetry.NewTraceHandler(&buf, slog.LevelWarn))

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %s", buf.String())
	}
}
