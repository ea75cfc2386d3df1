package metrics_collectors

import (
	"context"
	"sort"

	"github.com/benmeehan/mqttkit/internal/models"
	"github.com/rs/zerolog"
)

// MetricsRegistry holds the available collectors keyed by name.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
		logger:     logger,
	}
}

// NewDefaultMetricsRegistry returns a registry with the memory and
// goroutine collectors.
func NewDefaultMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry(logger)
	r.Register(&MemoryMetricCollector{Logger: logger})
	r.Register(NewGoroutineMetricCollector(logger))
	return r
}

// Register adds a metric collector, replacing any with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// CollectEnabled reads every collector enabled by config, sorted by name.
// A failing collector is logged and left out.
func (r *MetricsRegistry) CollectEnabled(ctx context.Context, config *models.MetricsConfig) []models.RuntimeMetric {
	names := make([]string, 0, len(r.collectors))
	for name, c := range r.collectors {
		if c.IsEnabled(config) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	metrics := make([]models.RuntimeMetric, 0, len(names))
	for _, name := range names {
		c := r.collectors[name]
		value, err := c.Collect(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("collector", name).Msg("Skipping failed metric collector")
			continue
		}
		metrics = append(metrics, models.RuntimeMetric{Name: name, Value: value, Unit: c.Unit()})
	}
	return metrics
}
