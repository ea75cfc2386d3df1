package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/benmeehan/mqttkit/internal/models"
	"github.com/rs/zerolog"
)

// GoroutineMetricCollector reports the goroutine count of the process. The
// client's workers, callback executor and paho's network loops all show up
// here, so a count that keeps climbing between heartbeats points at tokens
// nobody completes.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger

	// count reads the goroutine count; runtime.NumGoroutine when nil.
	count func() int
}

// NewGoroutineMetricCollector returns a collector backed by the runtime.
func NewGoroutineMetricCollector(logger zerolog.Logger) *GoroutineMetricCollector {
	return &GoroutineMetricCollector{Logger: logger, count: runtime.NumGoroutine}
}

func (g *GoroutineMetricCollector) Name() string { return "goroutines" }

func (g *GoroutineMetricCollector) Collect(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := g.count
	if count == nil {
		count = runtime.NumGoroutine
	}
	n := float64(count())
	g.Logger.Debug().Float64("goroutines", n).Msg("Goroutine count collected")
	return n, nil
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorGoroutines
}

func (g *GoroutineMetricCollector) Unit() string { return "count" }

func (g *GoroutineMetricCollector) Description() string {
	return "Goroutines running in the MQTT client process."
}
