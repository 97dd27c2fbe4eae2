package rowsearch

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/domain"
)

const (
	metricsNamespace = "rowsearch"
	metricsSubsystem = "sdk"
)

// Operation statuses. Retryable failures come from storage or the index engine
// and are repaired by retrying or by Rebuild; the rest need a different input.
const (
	statusOK        = "ok"
	statusError     = "error"
	statusRetryable = "retryable"
)

// sdkMetrics holds prometheus metrics registered for the client.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
	branches   *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operations_total",
			Help:      "Client operations by type and status (ok, error, retryable).",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operation_duration_seconds",
			Help:      "Client operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rows_total",
			Help:      "Rows touched by client operations, e.g. apply/upserted or search/returned.",
		}, []string{"operation", "outcome"}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "apply_branches_total",
			Help:      "Applied mutations by index sync branch.",
		}, []string{"branch"}),
	}
	for _, c := range []**prometheus.CounterVec{&m.operations, &m.rows, &m.branches} {
		if err := registerOrReuse(reg, c); err != nil {
			return nil, err
		}
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector, or points c at the collector a previous
// client registered under the same name.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("rowsearch: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("rowsearch: metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

func status(err error) string {
	switch {
	case err == nil:
		return statusOK
	case domain.IsRetryable(err):
		return statusRetryable
	default:
		return statusError
	}
}

// observer provides logging and metrics for client operations. A nil observer
// and an observer without a logger or registry are valid.
type observer struct {
	logger  *zap.Logger
	metrics *sdkMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error, fields ...zap.Field) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	st := status(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, st).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger == nil {
		return
	}
	fields = append(fields, zap.String("op", op), zap.Duration("duration", dur))
	if err != nil {
		o.logger.Warn("operation failed", append(fields, zap.String("status", st), zap.Error(err))...)
		return
	}
	o.logger.Debug("operation completed", fields...)
}

// rows counts rows an operation touched.
func (o *observer) rows(op, outcome string, n int) {
	if o == nil || o.metrics == nil || n <= 0 {
		return
	}
	o.metrics.rows.WithLabelValues(op, outcome).Add(float64(n))
}

// applied records the sync branch and row counts of an applied mutation.
func (o *observer) applied(out Outcome) []zap.Field {
	if o != nil && o.metrics != nil && out.Branch != "" {
		o.metrics.branches.WithLabelValues(out.Branch).Inc()
	}
	o.rows("apply", "upserted", out.Upserted)
	o.rows("apply", "deleted", out.Deleted)
	return []zap.Field{
		zap.String("branch", out.Branch),
		zap.Int("upserted", out.Upserted),
		zap.Int("deleted", out.Deleted),
	}
}

// rebuilt records the row counts of a rebuild.
func (o *observer) rebuilt(s RebuildStats) []zap.Field {
	o.rows("rebuild", "indexed", s.Rows)
	o.rows("rebuild", "failed", s.Failed)
	return []zap.Field{
		zap.Int("partitions", s.Partitions),
		zap.Int("rows", s.Rows),
		zap.Int("failed", s.Failed),
	}
}

// unhealthy logs components that failed a health check.
func (o *observer) unhealthy(h HealthStatus) {
	if o == nil || o.logger == nil || h.Healthy() {
		return
	}
	o.logger.Warn("health check failed",
		zap.String("status", h.Status),
		zap.Strings("failing", h.Failing()),
		zap.Int("checked", len(h.Checks)),
	)
}
