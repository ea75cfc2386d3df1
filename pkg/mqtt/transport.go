package mqtt

import mqtt "github.com/eclipse/paho.mqtt.golang"

// Credentials are forwarded unmodified to the broker on connect. Empty
// fields are treated as not set.
type Credentials struct {
	Username string
	Password string
}

// EventHandler receives the session's transport events. Methods are called
// from paho's goroutines and must not block for long.
type EventHandler interface {
	// OnConnected is called after every completed connect. isReconnect is
	// false for the first completion following an explicit Connect.
	OnConnected(isReconnect bool)

	// OnConnectionLost is called when an established connection drops.
	OnConnectionLost(err error)

	// OnReconnecting is called before each automatic reconnect attempt.
	OnReconnecting()

	// OnMessage is called for every inbound message.
	OnMessage(topic string, payload []byte)
}

// Transport is the session surface consumed by the client facade.
type Transport interface {
	Connect(creds Credentials) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte) mqtt.Token
	Unsubscribe(topic string) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	SetEventHandler(h EventHandler)
	Close() error
}
