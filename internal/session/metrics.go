package session

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/telemetry"
)

// registerMetrics registers observable gauges for session health. Called
// from Start after the global meter provider has been initialized.
func (m *Manager) registerMetrics() {
	meter := telemetry.Meter("clipper/session")

	_, _ = meter.Int64ObservableGauge("clipper.sessions.cached",
		metric.WithDescription("Workspaces currently held in the in-memory cache"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.cache.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("clipper.jobs.registered",
		metric.WithDescription("Background jobs currently registered"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.registry.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("clipper.sessions.processing",
		metric.WithDescription("Sessions currently in processing status"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.store.CountByStatus(ctx, model.StatusProcessing)))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("clipper.sessions.purged_total",
		metric.WithDescription("Total sessions removed by age-based cleanup"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.purgedTotal.Load())
			return nil
		}),
	)
}
