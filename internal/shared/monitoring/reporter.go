package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Reporter is the external error-monitoring collaborator. Domain and
// workflow errors are reported here for observability; reporting never
// alters the error returned to callers.
type Reporter interface {
	ReportError(ctx context.Context, err error, tags map[string]string)
}

// LogReporter reports errors through structured logging and a prometheus
// counter. It stands in for a hosted error tracker.
type LogReporter struct {
	logger  *zap.Logger
	counter *prometheus.CounterVec
}

// NewLogReporter creates a new LogReporter.
func NewLogReporter(logger *zap.Logger, namespace string) *LogReporter {
	if namespace == "" {
		namespace = "hangouthub"
	}
	return &LogReporter{
		logger: logger,
		counter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "monitoring",
				Name:      "reported_errors_total",
				Help:      "Total number of errors reported to monitoring",
			},
			[]string{"component"},
		),
	}
}

// ReportError logs the error with its tags and increments the error counter.
func (r *LogReporter) ReportError(ctx context.Context, err error, tags map[string]string) {
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.Error(err))
	component := "unknown"
	for k, v := range tags {
		if k == "component" {
			component = v
		}
		fields = append(fields, zap.String(k, v))
	}

	r.logger.Error("error reported to monitoring", fields...)
	r.counter.WithLabelValues(component).Inc()
}

// NopReporter discards all reports. Used in tests.
type NopReporter struct{}

// ReportError implements Reporter.
func (NopReporter) ReportError(context.Context, error, map[string]string) {}
