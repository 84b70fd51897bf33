package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// command is the span of the running pp invocation. Tool spans started from
// the context StartCommand returns become its children.
var command struct {
	sync.Mutex
	span  trace.Span
	name  string
	start time.Time
}

// StartCommand opens the pp.command span for name (e.g. "pp e2e").
func StartCommand(ctx context.Context, name string) context.Context {
	command.Lock()
	defer command.Unlock()
	ctx, span := Tracer("").Start(ctx, "pp.command",
		trace.WithAttributes(attribute.String("pp.command", name)))
	command.span = span
	command.name = name
	command.start = time.Now()
	return ctx
}

// EndCommand closes the command span and records pp.command.duration with
// the exit code. Only the first call after StartCommand has an effect.
func EndCommand(ctx context.Context, exitCode int) {
	command.Lock()
	defer command.Unlock()
	if command.span == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("pp.command", command.name),
		attribute.Int("pp.exit_code", exitCode),
	}
	command.span.SetAttributes(attrs[1])
	if exitCode != 0 {
		command.span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", exitCode))
	}
	command.span.End()
	command.span = nil

	hist, err := Meter("").Float64Histogram("pp.command.duration",
		metric.WithDescription("Wall time of one pp command"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	hist.Record(ctx, float64(time.Since(command.start).Milliseconds()), metric.WithAttributes(attrs...))
}
