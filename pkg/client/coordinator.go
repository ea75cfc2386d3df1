package client

import mqttLib "github.com/eclipse/paho.mqtt.golang"

// coordinator receives transport events on behalf of a Client and drives
// the connection state machine and resubscription.
type coordinator struct {
	c *Client
}

// OnConnected restores the registry on the wire after an automatic
// reconnect. The initial connect needs no resubscription; its success
// callback is delivered by Connect.
func (co *coordinator) OnConnected(isReconnect bool) {
	c := co.c
	if !isReconnect {
		if !c.state.setIf(StateConnected, StateConnecting, StateConnected) {
			c.logger.Warn().Msg("Initial MQTT connection established after disconnect, ignoring")
			return
		}
		c.logger.Info().Msg("Initial MQTT connection established")
		return
	}
	c.state.set(StateConnected)

	c.metrics.Reconnects.Inc()
	c.logger.Info().Int("topics", c.registry.Len()).Msg("Reconnected to MQTT broker, restoring subscriptions")

	if cb := c.reconnectCallback(); cb != nil {
		c.callbacks.Execute(c.guard("reconnect", cb))
	}
	c.resubscribeAll()
}

func (co *coordinator) OnConnectionLost(err error) {
	c := co.c
	next := StateDisconnected
	if c.opts.AutoReconnect {
		next = StateConnecting
	}
	c.state.set(next)
	c.metrics.ConnectionLost.Inc()
	c.logger.Warn().Err(err).Str("state", next.String()).Msg("Connection lost")

	if cb := c.connectionLostCallback(); cb != nil {
		c.callbacks.Execute(c.guard("connection lost", func() { cb(err) }))
	}
}

func (co *coordinator) OnReconnecting() {
	co.c.state.set(StateConnecting)
}

func (co *coordinator) OnMessage(topic string, payload []byte) {
	co.c.metrics.Received.Inc()
	co.c.registry.Dispatch(topic, payload)
}

// resubscribeAll issues a wire subscribe for every registration in a
// snapshot of the registry. Topics removed since the snapshot are skipped.
// Failures are reported per topic and do not stop the loop. It returns the
// number of topics restored.
func (c *Client) resubscribeAll() int {
	restored := 0
	for _, reg := range c.registry.Snapshot() {
		token, qos, ok := c.restoreTopic(reg.Topic)
		if !ok {
			continue
		}
		if err := waitToken(c.ctx, token); err != nil {
			c.report(OpResubscribe, reg.Topic, err)
			continue
		}
		restored++
		c.metrics.Resubscribed.Inc()
		c.logger.Info().Str("topic", reg.Topic).Uint8("qos", qos).Msg("Resubscribed to topic")
	}

	if !c.opts.CleanSession {
		c.unsubscribeStale()
	}
	return restored
}

// restoreTopic issues the wire subscribe for topic at its registered QoS,
// or reports false when topic is no longer registered.
func (c *Client) restoreTopic(topic string) (mqttLib.Token, byte, bool) {
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	reg, ok := c.registry.Lookup(topic)
	if !ok {
		return nil, 0, false
	}
	c.resubGen++
	return c.transport.Subscribe(topic, reg.QoS), reg.QoS, true
}

// unsubscribeStale removes subscriptions the broker kept for topics that
// left the registry while offline.
func (c *Client) unsubscribeStale() {
	for _, topic := range c.stale.Keys() {
		c.wireMu.Lock()
		if c.registry.Has(topic) {
			c.wireMu.Unlock()
			c.stale.Remove(topic)
			continue
		}
		token := c.transport.Unsubscribe(topic)
		c.wireMu.Unlock()

		if err := waitToken(c.ctx, token); err != nil {
			c.report(OpUnsubscribe, topic, err)
			continue
		}
		c.stale.Remove(topic)
		c.logger.Info().Str("topic", topic).Msg("Removed stale broker subscription")
	}
}
