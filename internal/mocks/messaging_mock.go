package mocks

import (
	"sync"

	"github.com/benmeehan/mqttkit/pkg/registry"
	"github.com/stretchr/testify/mock"
)

// MockMessagingClient is a mock implementation of services.MessagingClient.
// Handlers passed to SubscribeQoS and SetGlobalHandler are kept so tests
// can deliver messages to them.
type MockMessagingClient struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string]registry.Handler
	global   registry.Handler
}

func (m *MockMessagingClient) PublishQoS(topic string, payload []byte, qos int, retain bool) {
	m.Called(topic, payload, qos, retain)
}

func (m *MockMessagingClient) SubscribeQoS(topic string, handler registry.Handler, qos int) {
	m.Called(topic, qos)
	m.mu.Lock()
	if m.handlers == nil {
		m.handlers = make(map[string]registry.Handler)
	}
	m.handlers[topic] = handler
	m.mu.Unlock()
}

func (m *MockMessagingClient) Unsubscribe(topic string) {
	m.Called(topic)
	m.mu.Lock()
	delete(m.handlers, topic)
	m.mu.Unlock()
}

func (m *MockMessagingClient) SetGlobalHandler(h registry.Handler) {
	m.Called(h == nil)
	m.mu.Lock()
	m.global = h
	m.mu.Unlock()
}

// Deliver runs the handlers registered for topic the way the registry
// would, topic handler first.
func (m *MockMessagingClient) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	h, g := m.handlers[topic], m.global
	m.mu.Unlock()
	if h != nil {
		_ = h(topic, payload)
	}
	if g != nil {
		_ = g(topic, payload)
	}
}
