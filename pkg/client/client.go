// Package client is the MQTT facade: it forwards operations to a transport
// session through a bounded worker pool, keeps the subscription registry,
// and restores wire subscriptions after the transport reconnects.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - User callbacks never run on the transport's goroutines unless an
//     inline executor is configured.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benmeehan/mqttkit/pkg/executor"
	"github.com/benmeehan/mqttkit/pkg/mqtt"
	"github.com/benmeehan/mqttkit/pkg/registry"
	"github.com/benmeehan/mqttkit/pkg/workerpool"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Client combines the subscription registry, the reconnect coordinator and
// the outbound worker pool around a single transport session.
type Client struct {
	transport mqtt.Transport
	registry  *registry.Registry
	callbacks executor.Executor
	pool      *workerpool.WorkerPool
	opts      Options
	metrics   *Metrics
	logger    zerolog.Logger

	state connState
	qos   atomic.Uint32

	// stale holds topics dropped from the registry while the wire was
	// unavailable. Only used without a clean session.
	stale cmap.ConcurrentMap[string, struct{}]

	// wireMu orders registry changes against the wire calls that mirror
	// them. resubGen counts wire subscribes issued by resubscribeAll and is
	// guarded by wireMu.
	wireMu   sync.Mutex
	resubGen uint64

	cbMu             sync.RWMutex
	onReconnect      func()
	onConnectionLost func(error)

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wires a Client to transport and installs itself as the transport's
// event handler. It does not connect.
func New(transport mqtt.Transport, opts Options, logger zerolog.Logger) *Client {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		transport: transport,
		callbacks: opts.CallbackExecutor,
		pool:      workerpool.New(opts.Workers, opts.QueueSize, opts.Backpressure),
		opts:      opts,
		metrics:   opts.Metrics,
		logger:    logger,
		stale:     cmap.New[struct{}](),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.registry = registry.New(c.callbacks, func(topic string, err error) {
		c.emit(&OpError{Op: OpDispatch, Topic: topic, Err: err})
	}, logger)

	c.state.onChange = func(from, to State) {
		c.metrics.State.Set(float64(to))
		c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Connection state changed")
	}

	level, ok := validQoS(opts.QoS)
	if !ok {
		c.logger.Warn().Int("qos", opts.QoS).Msg("Invalid QoS level, using default")
		level = defaultQoS
	}
	c.qos.Store(uint32(level))

	transport.SetEventHandler(&coordinator{c: c})
	return c
}

// Connect starts a connection attempt on the worker pool. If a connect is
// already in flight or the client is connected, the call is a silent
// no-op. listener may be nil.
func (c *Client) Connect(username, password string, listener ConnectionListener) {
	if c.closed.Load() {
		c.notifyFailure(listener, c.report(OpConnect, "", ErrClosed))
		return
	}
	if !c.state.beginConnect() {
		c.logger.Debug().Str("state", c.state.get().String()).Msg("Connect suppressed, already connecting or connected")
		return
	}

	creds := mqtt.Credentials{Username: username, Password: password}
	err := c.pool.Submit(func(ctx context.Context) {
		token := c.transport.Connect(creds)
		if err := waitToken(ctx, token); err != nil {
			c.state.set(StateDisconnected)
			c.notifyFailure(listener, c.report(OpConnect, "", err))
			return
		}

		// The transport may already have reported the connection through
		// OnConnected. A Disconnect that ran meanwhile wins.
		if !c.state.setIf(StateConnected, StateConnecting, StateConnected) {
			c.logger.Warn().Msg("Connect completed after disconnect, dropping connection")
			c.disconnect()
			c.notifyFailure(listener, c.report(OpConnect, "", ErrConnectAborted))
			return
		}
		c.logger.Info().Msg("MQTT connect success")
		if listener != nil {
			c.callbacks.Execute(c.guard("connect success", listener.OnSuccess))
		}
	})
	if err != nil {
		c.state.set(StateDisconnected)
		c.notifyFailure(listener, c.report(OpConnect, "", err))
	}
}

func (c *Client) notifyFailure(listener ConnectionListener, err error) {
	if listener == nil {
		return
	}
	c.callbacks.Execute(c.guard("connect failure", func() { listener.OnFailure(err) }))
}

// Publish sends payload to topic at the current default QoS. While
// offline the message is dropped and reported, never queued or retried.
func (c *Client) Publish(topic string, payload []byte, retain bool) {
	c.publish(topic, payload, c.QoS(), retain)
}

// PublishQoS is Publish with an explicit QoS. An invalid qos falls back to
// the default with a warning.
func (c *Client) PublishQoS(topic string, payload []byte, qos int, retain bool) {
	level, ok := validQoS(qos)
	if !ok {
		level = c.QoS()
		c.logger.Warn().Int("qos", qos).Uint8("fallback", level).Str("topic", topic).Msg("Invalid QoS level for publish")
	}
	c.publish(topic, payload, level, retain)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retain bool) {
	if topic == "" {
		c.report(OpPublish, topic, ErrInvalidTopic)
		return
	}

	c.submit(OpPublish, topic, func(ctx context.Context) {
		if !c.transport.IsConnected() {
			c.drop(OpPublish, topic)
			return
		}

		token := c.transport.Publish(topic, qos, retain, payload)
		if err := waitToken(ctx, token); err != nil {
			c.report(OpPublish, topic, err)
			return
		}
		c.metrics.Published.Inc()
		c.logger.Debug().Str("topic", topic).Uint8("qos", qos).Bool("retain", retain).Msg("Published message")
	})
}

// Put publishes a string value without the retain flag.
func (c *Client) Put(topic, value string) {
	c.Publish(topic, []byte(value), false)
}

// PutRetain publishes a string value as the broker's retained value.
func (c *Client) PutRetain(topic, value string) {
	c.Publish(topic, []byte(value), true)
}

// Subscribe subscribes to topic at the current default QoS.
func (c *Client) Subscribe(topic string, handler registry.Handler) {
	c.SubscribeQoS(topic, handler, int(c.QoS()))
}

// SubscribeQoS registers handler for topic and subscribes on the wire. The
// registration is rolled back when the wire subscribe fails. An invalid
// qos falls back to the default with a warning.
func (c *Client) SubscribeQoS(topic string, handler registry.Handler, qos int) {
	if topic == "" {
		c.report(OpSubscribe, topic, ErrInvalidTopic)
		return
	}
	if handler == nil {
		c.report(OpSubscribe, topic, ErrInvalidHandler)
		return
	}
	level, ok := validQoS(qos)
	if !ok {
		level = c.QoS()
		c.logger.Warn().Int("qos", qos).Uint8("fallback", level).Str("topic", topic).Msg("Invalid QoS level for subscribe")
	}

	c.submit(OpSubscribe, topic, func(ctx context.Context) {
		if !c.transport.IsConnected() {
			c.drop(OpSubscribe, topic)
			return
		}

		// Register before the wire subscribe so retained messages that
		// arrive right after the SUBACK find their handler.
		c.wireMu.Lock()
		gen := c.resubGen
		prev, replaced := c.registry.Register(topic, level, handler)
		c.wireMu.Unlock()
		c.stale.Remove(topic)

		token := c.transport.Subscribe(topic, level)
		if err := waitToken(ctx, token); err != nil {
			c.rollbackSubscribe(ctx, topic, prev, replaced, gen)
			c.report(OpSubscribe, topic, err)
			return
		}
		c.logger.Info().Str("topic", topic).Uint8("qos", level).Msg("Subscribed to topic")
	})
}

// Unsubscribe removes topic from the registry and, when connected, from
// the wire. Removing an unknown topic is a no-op.
func (c *Client) Unsubscribe(topic string) {
	if topic == "" {
		c.report(OpUnsubscribe, topic, ErrInvalidTopic)
		return
	}

	c.submit(OpUnsubscribe, topic, func(ctx context.Context) {
		var token mqttLib.Token
		c.wireMu.Lock()
		c.registry.Unregister(topic)
		if c.transport.IsConnected() {
			token = c.transport.Unsubscribe(topic)
		}
		c.wireMu.Unlock()

		if token == nil {
			c.markStale(topic)
			c.logger.Debug().Str("topic", topic).Msg("Unsubscribed while offline, registry entry removed")
			return
		}
		if err := waitToken(ctx, token); err != nil {
			c.markStale(topic)
			c.report(OpUnsubscribe, topic, err)
			return
		}
		c.logger.Info().Str("topic", topic).Msg("Unsubscribed from topic")
	})
}

// rollbackSubscribe undoes a registration whose wire subscribe failed. When
// a reconnect ran since the registration, it may have restored the topic on
// the wire, so the wire subscription is removed as well.
func (c *Client) rollbackSubscribe(ctx context.Context, topic string, prev registry.Registration, replaced bool, gen uint64) {
	var token mqttLib.Token
	c.wireMu.Lock()
	if replaced {
		c.registry.Restore(prev)
	} else {
		c.registry.Unregister(topic)
		if c.resubGen != gen && c.transport.IsConnected() {
			token = c.transport.Unsubscribe(topic)
		}
	}
	c.wireMu.Unlock()

	if token == nil {
		return
	}
	if err := waitToken(ctx, token); err != nil {
		c.markStale(topic)
		c.report(OpUnsubscribe, topic, err)
	}
}

func (c *Client) markStale(topic string) {
	if !c.opts.CleanSession {
		c.stale.Set(topic, struct{}{})
	}
}

// SetGlobalHandler installs a handler that sees every inbound message
// after the topic's own handler. Pass nil to remove it.
func (c *Client) SetGlobalHandler(h registry.Handler) {
	c.registry.SetGlobalHandler(h)
}

// SetOnReconnect installs a callback run once per automatic reconnect,
// before subscriptions are restored. It is not run for the initial connect.
func (c *Client) SetOnReconnect(cb func()) {
	c.cbMu.Lock()
	c.onReconnect = cb
	c.cbMu.Unlock()
}

// SetOnConnectionLost installs a callback run when the transport loses an
// established connection.
func (c *Client) SetOnConnectionLost(cb func(error)) {
	c.cbMu.Lock()
	c.onConnectionLost = cb
	c.cbMu.Unlock()
}

func (c *Client) reconnectCallback() func() {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	return c.onReconnect
}

func (c *Client) connectionLostCallback() func(error) {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	return c.onConnectionLost
}

// SetQoS changes the default QoS. Values outside 0..2 are ignored with a
// warning and the previous level stays in effect.
func (c *Client) SetQoS(qos int) {
	level, ok := validQoS(qos)
	if !ok {
		c.logger.Warn().Int("qos", qos).Uint8("current", c.QoS()).Msg("Invalid QoS level, keeping previous value")
		return
	}
	c.qos.Store(uint32(level))
}

// QoS returns the current default QoS.
func (c *Client) QoS() byte {
	return byte(c.qos.Load())
}

// State returns the coordinator's connection state.
func (c *Client) State() State {
	return c.state.get()
}

// IsConnected reports whether the transport currently has a connection.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// Registry exposes the subscription registry for inspection.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Disconnect queues a graceful disconnect.
func (c *Client) Disconnect() {
	c.submit(OpDisconnect, "", func(context.Context) {
		c.disconnect()
	})
}

func (c *Client) disconnect() {
	if c.state.get() == StateDisconnected && !c.transport.IsConnected() {
		return
	}
	c.transport.Disconnect(c.opts.DisconnectQuiesce)
	c.state.set(StateDisconnected)
	c.logger.Info().Msg("Disconnected from MQTT broker")
}

// Close disconnects, waits up to the shutdown grace period for queued
// operations, cancels whatever is still running and releases the
// transport. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		// Never wait for queue space here: workers may be stuck on tokens
		// that only the shutdown below can cancel.
		if err := c.pool.TrySubmit(func(context.Context) { c.disconnect() }); err != nil {
			c.disconnect()
		}
		c.closed.Store(true)

		var errs []error
		if err := c.pool.Shutdown(c.opts.ShutdownGrace); err != nil {
			c.logger.Warn().Err(err).Msg("Forced shutdown of pending MQTT operations")
			errs = append(errs, err)
		}
		c.cancel()

		if err := c.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
		c.closeErr = errors.Join(errs...)
		c.logger.Info().Msg("MQTT client resources cleaned up")
	})
	return c.closeErr
}

// submit queues task on the pool, reporting the failure when it cannot.
func (c *Client) submit(op Op, topic string, task func(ctx context.Context)) bool {
	if c.closed.Load() {
		c.report(op, topic, ErrClosed)
		return false
	}
	if err := c.pool.Submit(task); err != nil {
		c.report(op, topic, err)
		return false
	}
	return true
}

// drop records an operation discarded because the client is offline.
func (c *Client) drop(op Op, topic string) {
	c.metrics.Dropped.WithLabelValues(string(op)).Inc()
	c.logger.Warn().Str("op", string(op)).Str("topic", topic).Msg("Operation dropped, client not connected")
	c.emit(&OpError{Op: op, Topic: topic, Err: ErrNotConnected})
}

// report logs a failure and hands it to the sink. It returns the OpError.
func (c *Client) report(op Op, topic string, err error) error {
	opErr := &OpError{Op: op, Topic: topic, Err: err}
	c.logger.Error().Err(err).Str("op", string(op)).Str("topic", topic).Msg("MQTT operation failed")
	c.emit(opErr)
	return opErr
}

func (c *Client) emit(opErr *OpError) {
	c.metrics.Failures.WithLabelValues(string(opErr.Op)).Inc()
	if c.opts.ErrorSink != nil {
		c.opts.ErrorSink(opErr)
	}
}

// guard wraps a user callback so a panic is reported instead of killing
// the executor goroutine.
func (c *Client) guard(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				c.report(OpDispatch, "", fmt.Errorf("%s callback panicked: %v", name, r))
			}
		}()
		fn()
	}
}

// waitToken blocks until token completes or ctx is cancelled.
func waitToken(ctx context.Context, token mqttLib.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
