package models

import "time"

// Heartbeat represents the status message published by the heartbeat service.
type Heartbeat struct {
	ClientID  string          `json:"client_id"`
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
	Uptime    float64         `json:"uptime_seconds"`
	Metrics   []RuntimeMetric `json:"metrics,omitempty"`
}

// RuntimeMetric is one collector reading attached to a heartbeat.
type RuntimeMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// MetricsConfig selects which runtime collectors a heartbeat includes.
type MetricsConfig struct {
	MonitorMemory     bool
	MonitorGoroutines bool
}
