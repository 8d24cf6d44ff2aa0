// Package telemetry provides OpenTelemetry metrics for imagehub.
// Metrics are exported via OTLP/HTTP when enabled.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`   // OTLP HTTP endpoint, e.g. "http://localhost:4318"
	AuthToken string `mapstructure:"auth_token"` // Basic auth token (base64 encoded user:pass)
}

// NewMeterProvider creates a meter provider exporting to cfg.Endpoint and installs
// it globally. It returns nil when telemetry is disabled.
// The returned shutdown function must be called on application exit.
func NewMeterProvider(ctx context.Context, cfg Config, serviceName, version string) (*metric.MeterProvider, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("create resource: %w", err)
	}

	opts, err := exporterOptions(cfg)
	if err != nil {
		return nil, noop, err
	}

	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exp)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}

// exporterOptions extracts host, path, and scheme from the configured endpoint URL.
func exporterOptions(cfg Config) ([]otlpmetrichttp.Option, error) {
	parsedURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", cfg.Endpoint)
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(parsedURL.Host)}
	if cfg.AuthToken != "" {
		opts = append(opts, otlpmetrichttp.WithHeaders(map[string]string{"Authorization": "Basic " + cfg.AuthToken}))
	}
	if basePath := strings.TrimSuffix(parsedURL.Path, "/"); basePath != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(basePath+"/v1/metrics"))
	}
	if parsedURL.Scheme == "http" {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts, nil
}
