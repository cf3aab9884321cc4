package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DashboardMetrics holds custom metrics for dashboard resolution
type DashboardMetrics struct {
	requestDuration   metric.Float64Histogram
	requestCounter    metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeRequests    metric.Int64UpDownCounter
	componentDuration metric.Float64Histogram
	componentErrors   metric.Int64Counter
	componentRows     metric.Int64Histogram
	columnCacheHits   metric.Int64Counter
	columnCacheMisses metric.Int64Counter
	configRefreshes   metric.Int64Counter
	configStaleServes metric.Int64Counter
}

// InitDashboardMetrics initializes dashboard-specific metrics
func InitDashboardMetrics() (*DashboardMetrics, error) {
	meter := otel.Meter("agridash")

	requestDuration, err := meter.Float64Histogram(
		"dashboard.request.duration",
		metric.WithDescription("Duration of dashboard requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"dashboard.requests.total",
		metric.WithDescription("Total number of dashboard requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"dashboard.errors.total",
		metric.WithDescription("Total number of dashboard request errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"dashboard.requests.active",
		metric.WithDescription("Number of active dashboard requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	componentDuration, err := meter.Float64Histogram(
		"dashboard.component.duration",
		metric.WithDescription("Duration of component resolution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create component duration histogram: %w", err)
	}

	componentErrors, err := meter.Int64Counter(
		"dashboard.component.errors",
		metric.WithDescription("Number of components that resolved to an error fragment"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create component error counter: %w", err)
	}

	componentRows, err := meter.Int64Histogram(
		"dashboard.component.rows",
		metric.WithDescription("Number of rows returned by a component query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create component rows histogram: %w", err)
	}

	columnCacheHits, err := meter.Int64Counter(
		"dashboard.column_cache.hits",
		metric.WithDescription("Number of column existence checks served from cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create column cache hits counter: %w", err)
	}

	columnCacheMisses, err := meter.Int64Counter(
		"dashboard.column_cache.misses",
		metric.WithDescription("Number of column existence checks that probed the database"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create column cache misses counter: %w", err)
	}

	configRefreshes, err := meter.Int64Counter(
		"dashboard.page_config.refreshes",
		metric.WithDescription("Number of page configuration fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create config refresh counter: %w", err)
	}

	configStaleServes, err := meter.Int64Counter(
		"dashboard.page_config.stale_serves",
		metric.WithDescription("Number of times a stale page configuration was served after a failed refresh"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create config stale serve counter: %w", err)
	}

	return &DashboardMetrics{
		requestDuration:   requestDuration,
		requestCounter:    requestCounter,
		errorCounter:      errorCounter,
		activeRequests:    activeRequests,
		componentDuration: componentDuration,
		componentErrors:   componentErrors,
		componentRows:     componentRows,
		columnCacheHits:   columnCacheHits,
		columnCacheMisses: columnCacheMisses,
		configRefreshes:   configRefreshes,
		configStaleServes: configStaleServes,
	}, nil
}

// RecordRequest records a dashboard request with its duration and outcome
func (m *DashboardMetrics) RecordRequest(ctx context.Context, duration time.Duration, status int) {
	attrs := []attribute.KeyValue{
		attribute.Int("status", status),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if status >= 400 {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordComponent records the resolution of a single component
func (m *DashboardMetrics) RecordComponent(ctx context.Context, componentType string, duration time.Duration, failed bool) {
	attrs := []attribute.KeyValue{
		attribute.String("component_type", componentType),
	}

	m.componentDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if failed {
		m.componentErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordComponentRows records the number of rows a component query returned
func (m *DashboardMetrics) RecordComponentRows(ctx context.Context, componentType string, rows int64) {
	m.componentRows.Record(ctx, rows, metric.WithAttributes(
		attribute.String("component_type", componentType),
	))
}

func (m *DashboardMetrics) RecordColumnCacheHit(ctx context.Context, table string) {
	m.columnCacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
	))
}

func (m *DashboardMetrics) RecordColumnCacheMiss(ctx context.Context, table string) {
	m.columnCacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table),
	))
}

func (m *DashboardMetrics) RecordConfigRefresh(ctx context.Context, success bool) {
	m.configRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

func (m *DashboardMetrics) RecordConfigStaleServe(ctx context.Context) {
	m.configStaleServes.Add(ctx, 1)
}

// IncrementActiveRequests increments the active requests counter
func (m *DashboardMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *DashboardMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the DashboardMetrics instance
func InitMetrics(logger *slog.Logger) (*DashboardMetrics, error) {
	metrics, err := InitDashboardMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dashboard metrics: %w", err)
	}

	logger.Info("custom dashboard metrics initialized")
	return metrics, nil
}

type dashboardMetricsContextKey struct{}

// ContextWithDashboardMetrics stores dashboard metrics in the provided context.
func ContextWithDashboardMetrics(ctx context.Context, metrics *DashboardMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, dashboardMetricsContextKey{}, metrics)
}

// DashboardMetricsFromContext retrieves dashboard metrics from the context.
func DashboardMetricsFromContext(ctx context.Context) *DashboardMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(dashboardMetricsContextKey{}).(*DashboardMetrics)
	return metrics
}
