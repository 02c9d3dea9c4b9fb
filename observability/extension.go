package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/renderq/ext"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobSubmitted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobRetrying    = (*MetricsExtension)(nil)
	_ ext.JobCancelled   = (*MetricsExtension)(nil)
	_ ext.ProviderProbed = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via go-utils MetricFactory.
// Register it as an engine extension to automatically track submission rates,
// completion counts, failure rates, retry counts, cancellations, and provider
// probes.
type MetricsExtension struct {
	JobSubmitted   gu.Counter
	JobCompleted   gu.Counter
	JobFailed      gu.Counter
	JobRetried     gu.Counter
	JobCancelled   gu.Counter
	ProviderProbes gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("renderq/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
// Use fapp.Metrics() in forge extensions, or gu.NewMetricsCollector for testing.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobSubmitted:   factory.Counter("renderq.job.submitted"),
		JobCompleted:   factory.Counter("renderq.job.completed"),
		JobFailed:      factory.Counter("renderq.job.failed"),
		JobRetried:     factory.Counter("renderq.job.retried"),
		JobCancelled:   factory.Counter("renderq.job.cancelled"),
		ProviderProbes: factory.Counter("renderq.provider.probes"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(_ context.Context, _ *job.Job) error {
	m.JobSubmitted.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobCompleted.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	m.JobFailed.Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(_ context.Context, _ *job.Job) error {
	m.JobCancelled.Inc()
	return nil
}

// ── Provider lifecycle hooks ────────────────────────

// OnProviderProbed implements ext.ProviderProbed.
func (m *MetricsExtension) OnProviderProbed(_ context.Context, _ string, _ health.Record) error {
	m.ProviderProbes.Inc()
	return nil
}
