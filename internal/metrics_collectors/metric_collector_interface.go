package metrics_collectors

import (
	"context"

	"github.com/benmeehan/mqttkit/internal/models"
)

// MetricCollector defines the interface for collecting a specific metric.
type MetricCollector interface {
	Name() string                                 // Name of the metric (e.g., "memory", "goroutines")
	Collect(ctx context.Context) (float64, error) // Collect the metric value
	IsEnabled(config *models.MetricsConfig) bool  // Check if the metric is enabled in the config
	Unit() string                                 // Unit of the metric (e.g., "percentage", "count")
	Description() string                          // Description of the metric
}
