package constants

import "time"

const (
	// DefaultConfigFile is read when no -config flag is given.
	DefaultConfigFile = "configs/config.yaml"

	// DefaultClientID is the prefix used when the config leaves client_id empty.
	DefaultClientID = "mqttkit"

	// DefaultQoS is used for publish and subscribe unless configured.
	DefaultQoS = 1

	// DefaultConnectTimeout bounds a single connect attempt.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultKeepAlive is the MQTT keep-alive interval.
	DefaultKeepAlive = 20 * time.Second

	// DefaultMaxReconnectInterval caps paho's reconnect backoff.
	DefaultMaxReconnectInterval = 1 * time.Minute

	// DefaultDisconnectQuiesce is the disconnect quiesce time in milliseconds.
	DefaultDisconnectQuiesce = 250

	// DefaultWorkers and DefaultQueueSize size the client's operation pool.
	DefaultWorkers   = 4
	DefaultQueueSize = 64

	// DefaultShutdownGrace is how long Close waits for queued operations.
	DefaultShutdownGrace = 10 * time.Second

	// DefaultHeartbeatInterval is used when the heartbeat interval is unset.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultMetricsAddress is where the Prometheus endpoint listens.
	DefaultMetricsAddress = ":9101"
)

// Callback executor names accepted in config.
const (
	ExecutorInline    = "inline"
	ExecutorGoroutine = "goroutine"
	ExecutorSerial    = "serial"
)

// Heartbeat statuses
const (
	// StatusAlive is published while the agent is running.
	StatusAlive = "1"
	// StatusOffline is published once on a clean shutdown.
	StatusOffline = "0"
)
