package mocks

import (
	"sync"
	"sync/atomic"

	"github.com/benmeehan/mqttkit/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the mqtt.Transport interface.
// Connection state is held in Connected rather than mocked, so tests can
// flip it between calls.
type MockTransport struct {
	mock.Mock

	Connected atomic.Bool

	mu      sync.Mutex
	handler mqtt.EventHandler
}

func (m *MockTransport) Connect(creds mqtt.Credentials) mqttLib.Token {
	args := m.Called(creds)
	return args.Get(0).(mqttLib.Token)
}

func (m *MockTransport) Publish(topic string, qos byte, retained bool, payload interface{}) mqttLib.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqttLib.Token)
}

func (m *MockTransport) Subscribe(topic string, qos byte) mqttLib.Token {
	args := m.Called(topic, qos)
	return args.Get(0).(mqttLib.Token)
}

func (m *MockTransport) Unsubscribe(topic string) mqttLib.Token {
	args := m.Called(topic)
	return args.Get(0).(mqttLib.Token)
}

func (m *MockTransport) Disconnect(quiesce uint) {
	m.Called(quiesce)
	m.Connected.Store(false)
}

func (m *MockTransport) IsConnected() bool {
	return m.Connected.Load()
}

func (m *MockTransport) SetEventHandler(h mqtt.EventHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Handler returns the event handler installed by the client under test.
func (m *MockTransport) Handler() mqtt.EventHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}
