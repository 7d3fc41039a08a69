package tracer

import (
	"context"

	"gemini-chat-be/internal/config"
	"gemini-chat-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const logModuleTracer = "Tracer"

// ShutdownFunc flushes pending spans. It is safe to call when tracing is disabled.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracer installs a global OTLP HTTP tracer provider when cfg.Otel.Enabled is set.
// Exporter failures downgrade to no tracing rather than stopping the server.
func InitTracer(ctx context.Context, cfg *config.Config, log logger.ILogger) ShutdownFunc {
	otelCfg := cfg.Otel
	if !otelCfg.Enabled {
		log.Info(logModuleTracer, "Tracing disabled", map[string]interface{}{"env": "OTEL_ENABLED"})
		return noopShutdown
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(otelCfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn(logModuleTracer, "OTLP exporter unavailable, tracing disabled", map[string]interface{}{
			"endpoint": otelCfg.Endpoint,
			"error":    err.Error(),
		})
		return noopShutdown
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(otelCfg.SampleRatio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(otelCfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.App.Environment),
		)),
	)
	otel.SetTracerProvider(tp)

	log.Info(logModuleTracer, "Tracer initialized", map[string]interface{}{
		"endpoint":     otelCfg.Endpoint,
		"service":      otelCfg.ServiceName,
		"sample_ratio": otelCfg.SampleRatio,
	})
	return tp.Shutdown
}
