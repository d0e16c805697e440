package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

const instrumentationName = "github.com/sweetpotato0/fiberkb"

// Config controls the trace pipeline. With neither Endpoint nor Stdout set, spans are
// created but never exported.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Disable        bool
	// Endpoint of an OTLP/gRPC collector; OTEL_EXPORTER_OTLP_ENDPOINT when empty.
	Endpoint string
	// Stdout writes spans as JSON to stderr, which keeps stdout free for command output.
	Stdout bool
	// SampleRatio of root spans to keep; 0 keeps all.
	SampleRatio float64
	Logger      *slog.Logger
}

// Init installs the global tracer provider. The returned shutdown flushes pending spans.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.Disable {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fiberkb"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("telemetry")
	}

	exp, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		logger.Debug("no trace exporter configured")
		return noop, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...), resource.WithFromEnv(), resource.WithProcess())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
			return err
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, cfg Config, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint != "" {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
		}
		logger.Info("OTLP trace exporter configured", "endpoint", cfg.Endpoint)
		return exp, nil
	}
	if cfg.Stdout {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}
	return nil, nil
}

// Tracer returns the tracer shared by the retrieval components.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// End closes span. Not-found and invalid-input errors are caller mistakes, so they are
// recorded as events without flagging the span as failed.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, errorskg.ErrNotFound), errors.Is(err, errorskg.ErrInvalidInput):
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Degraded marks a span whose operation fell back to a weaker strategy.
func Degraded(span trace.Span, reason string, err error) {
	attrs := []attribute.KeyValue{attribute.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("degraded", trace.WithAttributes(attrs...))
}
