package client

import (
	"time"

	"github.com/benmeehan/mqttkit/pkg/executor"
	"github.com/benmeehan/mqttkit/pkg/workerpool"
)

const (
	defaultQoS               = 1
	defaultWorkers           = 4
	defaultQueueSize         = 64
	defaultShutdownGrace     = 10 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds

	maxQoS = 2
)

// Options configures a Client. Start from DefaultOptions; the zero value
// is usable but publishes at QoS 0 and treats connection loss as final.
type Options struct {
	// QoS is the default level for Publish and Subscribe.
	QoS int

	// Workers and QueueSize bound the outbound operation pool.
	Workers   int
	QueueSize int

	// Backpressure decides what happens when the queue is full.
	Backpressure workerpool.Policy

	// ShutdownGrace is how long Close waits for queued operations before
	// cancelling them.
	ShutdownGrace time.Duration

	// DisconnectQuiesce is passed to the transport's Disconnect, in milliseconds.
	DisconnectQuiesce uint

	// AutoReconnect must mirror the transport setting. It decides whether a
	// lost connection moves to Connecting or Disconnected.
	AutoReconnect bool

	// CleanSession must mirror the transport setting. Without a clean
	// session the broker remembers subscriptions, so topics removed while
	// offline are unsubscribed again after the next reconnect.
	CleanSession bool

	// CallbackExecutor runs every user callback. Defaults to one goroutine
	// per callback.
	CallbackExecutor executor.Executor

	// ErrorSink receives every swallowed failure. Optional.
	ErrorSink ErrorSink

	// Metrics records client counters. Unregistered metrics are used when nil.
	Metrics *Metrics
}

// DefaultOptions returns the settings the facade was designed around.
func DefaultOptions() Options {
	return Options{
		QoS:               defaultQoS,
		Workers:           defaultWorkers,
		QueueSize:         defaultQueueSize,
		Backpressure:      workerpool.Block,
		ShutdownGrace:     defaultShutdownGrace,
		DisconnectQuiesce: defaultDisconnectQuiesce,
		AutoReconnect:     true,
		CleanSession:      true,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = defaultShutdownGrace
	}
	if o.CallbackExecutor == nil {
		o.CallbackExecutor = executor.Goroutine()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	return o
}

func validQoS(qos int) (byte, bool) {
	if qos < 0 || qos > maxQoS {
		return 0, false
	}
	return byte(qos), true
}
