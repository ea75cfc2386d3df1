package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/mqttkit/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// MonitoredTopic is an exact topic the monitor subscribes to. Wildcard
// filters are not routed to topic handlers.
type MonitoredTopic struct {
	Topic string
	QOS   int
}

// MonitorService subscribes to a set of topics and logs what arrives. It
// keeps the last message summary per topic.
type MonitorService struct {
	Topics     []MonitoredTopic
	Global     bool
	MqttClient MessagingClient
	Logger     zerolog.Logger

	mu       sync.Mutex
	running  bool
	last     cmap.ConcurrentMap[string, models.MonitoredMessage]
	received atomic.Int64
}

// NewMonitorService initializes a new MonitorService.
func NewMonitorService(topics []MonitoredTopic, global bool, mqttClient MessagingClient, logger zerolog.Logger) *MonitorService {
	return &MonitorService{
		Topics:     topics,
		Global:     global,
		MqttClient: mqttClient,
		Logger:     logger,
		last:       cmap.New[models.MonitoredMessage](),
	}
}

// Start registers the topic handlers. Subscriptions requested while the
// client is offline are dropped by the client, so Start is meant to run
// from the connect success callback.
func (m *MonitorService) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor service is already running")
	}

	for _, t := range m.Topics {
		m.MqttClient.SubscribeQoS(t.Topic, m.handleMessage, t.QOS)
	}
	if m.Global {
		m.MqttClient.SetGlobalHandler(m.handleAny)
	}
	m.running = true

	m.Logger.Info().Int("topics", len(m.Topics)).Bool("global", m.Global).Msg("MonitorService started successfully")
	return nil
}

// Stop unsubscribes every monitored topic.
func (m *MonitorService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return errors.New("monitor service is not running")
	}

	for _, t := range m.Topics {
		m.MqttClient.Unsubscribe(t.Topic)
	}
	if m.Global {
		m.MqttClient.SetGlobalHandler(nil)
	}
	m.running = false

	m.Logger.Info().Msg("MonitorService stopped successfully")
	return nil
}

// Last returns the summary of the most recent message seen on topic.
func (m *MonitorService) Last(topic string) (models.MonitoredMessage, bool) {
	return m.last.Get(topic)
}

// Received returns the number of messages seen by the topic handlers.
func (m *MonitorService) Received() int64 {
	return m.received.Load()
}

func (m *MonitorService) handleMessage(topic string, payload []byte) error {
	msg := models.MonitoredMessage{Topic: topic, Size: len(payload), ReceivedAt: time.Now()}
	m.last.Set(topic, msg)
	m.received.Add(1)

	m.Logger.Info().Str("topic", topic).Int("size", msg.Size).Msg("Message received")
	return nil
}

func (m *MonitorService) handleAny(topic string, payload []byte) error {
	m.Logger.Debug().Str("topic", topic).Int("size", len(payload)).Msg("Message seen by global handler")
	return nil
}
