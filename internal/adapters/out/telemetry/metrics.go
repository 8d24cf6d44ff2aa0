package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// Metrics holds imagehub-specific OTel metrics instruments.
type Metrics struct {
	// Sync
	SyncRuns   metric.Int64Counter
	SyncImages metric.Int64Counter

	// Catalog operations
	Operations metric.Int64Counter

	// Cache
	CacheLookups metric.Int64Counter
}

var _ out.MetricsRecorder = (*Metrics)(nil)

// NewMetrics creates and registers all imagehub metric instruments on mp, or on
// the global provider when mp is nil. All fields are always initialized
// (OTel returns noop instruments when no MeterProvider is set).
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("imagehub")
	m := &Metrics{}
	var err error

	if m.SyncRuns, err = meter.Int64Counter("imagehub.sync.runs",
		metric.WithDescription("Catalog synchronizations by result code")); err != nil {
		return nil, err
	}
	if m.SyncImages, err = meter.Int64Counter("imagehub.sync.images",
		metric.WithDescription("Catalog rows added, deleted or skipped by synchronization")); err != nil {
		return nil, err
	}
	if m.Operations, err = meter.Int64Counter("imagehub.catalog.operations",
		metric.WithDescription("Catalog operations by name and result code")); err != nil {
		return nil, err
	}
	if m.CacheLookups, err = meter.Int64Counter("imagehub.cache.lookups",
		metric.WithDescription("Catalog cache lookups by outcome")); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordSync(ctx context.Context, report domain.SyncReport, code domain.Code) {
	m.SyncRuns.Add(ctx, 1, metric.WithAttributes(codeAttr(code)))
	if code != domain.CodeSuccess {
		return
	}
	for result, n := range map[string]int{"add": report.Added, "delete": report.Deleted, "error": report.Errored} {
		if n > 0 {
			m.SyncImages.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
		}
	}
}

func (m *Metrics) RecordOperation(ctx context.Context, op string, code domain.Code) {
	m.Operations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op), codeAttr(code)))
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func codeAttr(code domain.Code) attribute.KeyValue {
	return attribute.String("code", strconv.Itoa(int(code)))
}
