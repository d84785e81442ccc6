package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the pricing packages
const TracerName = "github.com/SamMebarek/mlopstest"

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled           bool    `yaml:"enabled"`
	ServiceName       string  `yaml:"service_name"`
	ServiceVersion    string  `yaml:"service_version"`
	Environment       string  `yaml:"environment"`
	CollectorEndpoint string  `yaml:"collector_endpoint"`
	CollectorInsecure bool    `yaml:"collector_insecure"`
	SamplingRate      float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns development defaults with tracing off
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:       serviceName,
		ServiceVersion:    "0.1.0",
		Environment:       "development",
		CollectorEndpoint: "localhost:4317",
		CollectorInsecure: true,
		SamplingRate:      1.0,
	}
}

// InitTracer installs a global tracer provider exporting over OTLP gRPC.
// When tracing is disabled it returns a nil provider and the global no-op
// provider stays in place.
func InitTracer(ctx context.Context, config *Config) (*sdktrace.TracerProvider, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.CollectorEndpoint)}
	if config.CollectorInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the tracer provider
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the package tracer with optional attributes
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

const (
	AttrSKU            = attribute.Key("pricing.sku")
	AttrPredictedPrice = attribute.Key("pricing.predicted_price")
	AttrOutcome        = attribute.Key("pricing.outcome")
	AttrModelVersion   = attribute.Key("model.version")
	AttrHistoryRows    = attribute.Key("data.rows")
)

// PredictionAttributes describes a completed prediction
func PredictionAttributes(sku, modelVersion string, price float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSKU.String(sku),
		AttrModelVersion.String(modelVersion),
		AttrPredictedPrice.Float64(price),
	}
}
