// Package telemetry wires OpenTelemetry tracing for gate runs.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies spans created by gate.
const TracerName = "github.com/deixis/gate"

// Options select the exporter.
type Options struct {
	Enabled  bool
	Exporter string    // stdout | noop
	Writer   io.Writer // stdout exporter destination; nil means stderr
}

// Setup installs the global tracer provider and returns its shutdown
// function. When tracing is disabled a noop provider is installed.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !opts.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	switch opts.Exporter {
	case "stdout":
		w := opts.Writer
		if w == nil {
			// The stdout exporter must not interleave with child output.
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		// Synchronous: gate exits right after the run.
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	case "noop", "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", opts.Exporter)
	}
}

// Tracer returns the gate tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
