// Package observability provides logging, metrics, and tracing.
//
// Collectors cover the HTTP surface, the provider gateway (queue depth, wait
// time, per-model attempts), the response cache and analysis jobs. Tracing is
// exported over OTLP/gRPC when an endpoint is configured.
package observability

import (
	"context"
	"log/slog"

	"github.com/Eagleeye1811/insightify-sub000/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// SetupTracing configures OTEL tracing if endpoint provided. Returns shutdown func.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
		semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
	))
	if err != nil {
		return nil, err
	}

	samplingRatio := SamplingRatio(cfg)
	sampler := trace.ParentBased(trace.TraceIDRatioBased(samplingRatio))
	slog.Info("tracing configured",
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Float64("sampling_ratio", samplingRatio))

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// SamplingRatio returns OTEL_SAMPLING_RATIO when it is in [0,1], otherwise
// 10% in prod and everything elsewhere.
func SamplingRatio(cfg config.Config) float64 {
	if cfg.OTELSamplingRatio >= 0 && cfg.OTELSamplingRatio <= 1 {
		return cfg.OTELSamplingRatio
	}
	if cfg.IsProd() {
		return 0.1
	}
	return 1.0
}
