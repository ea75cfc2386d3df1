package mocks

// MockMessage implements mqtt.Message for tests that drive paho handlers.
type MockMessage struct {
	topic   string
	payload []byte
	qos     byte
}

// NewMockMessage creates a QoS 1, non-retained message.
func NewMockMessage(topic string, payload []byte) *MockMessage {
	return &MockMessage{topic: topic, payload: payload, qos: 1}
}

func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return m.qos }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Ack()              {}
