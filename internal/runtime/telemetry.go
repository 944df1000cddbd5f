package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/intonelabs/intone/internal/config"
)

// telemetry owns the daemon's trace and metric providers. Traces cover each
// render run (the pipeline opens one span per run); metrics feed the
// Prometheus endpoint on the health server.
type telemetry struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	handler http.Handler
}

func newTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("intone.engine.mode", cfg.Engine.Mode),
			attribute.String("intone.output.format", cfg.Output.Format),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &telemetry{}
	if err := t.initTraces(ctx, cfg, res, logger); err != nil {
		return nil, err
	}
	t.initMetrics(res, logger)

	otel.SetTracerProvider(t.traces)
	otel.SetMeterProvider(t.metrics)
	return t, nil
}

// initTraces exports render spans over OTLP when an endpoint is configured,
// pretty-printed stdout otherwise.
func (t *telemetry) initTraces(ctx context.Context, cfg config.Config, res *resource.Resource, logger *slog.Logger) error {
	var exporter sdktrace.SpanExporter
	if endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return err
		}
		exporter = exp
		logger.Info("render traces exporting over otlp", slog.String("endpoint", endpoint))
	} else {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		exporter = exp
		logger.Info("render traces exporting to stdout")
	}

	t.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return nil
}

// initMetrics wires the meter provider to a Prometheus reader. A reader
// failure leaves metrics unexported rather than failing startup; the daemon
// can render without a /metrics endpoint.
func (t *telemetry) initMetrics(res *resource.Resource, logger *slog.Logger) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		t.metrics = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return
	}
	t.metrics = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	t.handler = promhttp.Handler()
}

// MetricsHandler returns the Prometheus scrape handler, nil when the
// exporter could not be set up.
func (t *telemetry) MetricsHandler() http.Handler { return t.handler }

func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.traces != nil {
		if err := t.traces.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
