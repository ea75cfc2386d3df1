package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/mqttkit/internal/constants"
	"github.com/benmeehan/mqttkit/internal/metrics_collectors"
	"github.com/benmeehan/mqttkit/internal/models"
	"github.com/rs/zerolog"
)

// HeartbeatService manages periodic heartbeat messages.
type HeartbeatService struct {
	PubTopic      string
	Interval      time.Duration
	QOS           int
	Retain        bool
	ClientID      string
	MetricsConfig models.MetricsConfig
	Collectors    *metrics_collectors.MetricsRegistry
	MqttClient    MessagingClient
	Logger        zerolog.Logger

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService. collectors may be
// nil, in which case heartbeats carry no runtime metrics.
func NewHeartbeatService(pubTopic string, interval time.Duration, qos int, retain bool, clientID string,
	metricsConfig models.MetricsConfig, collectors *metrics_collectors.MetricsRegistry,
	mqttClient MessagingClient, logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		PubTopic:      pubTopic,
		Interval:      interval,
		QOS:           qos,
		Retain:        retain,
		ClientID:      clientID,
		MetricsConfig: metricsConfig,
		Collectors:    collectors,
		MqttClient:    mqttClient,
		Logger:        logger,
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}
	if h.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	h.startedAt = time.Now()
	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().Str("topic", h.PubTopic).Dur("interval", h.Interval).Msg("HeartbeatService started successfully")
	return nil
}

// Stop ends the loop and publishes a final offline heartbeat.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.publish(context.Background(), constants.StatusOffline)

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// runHeartbeatLoop publishes one heartbeat straight away and then one per interval.
func (h *HeartbeatService) runHeartbeatLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.publish(h.ctx, constants.StatusAlive)
	for {
		select {
		case <-ticker.C:
			h.publish(h.ctx, constants.StatusAlive)

		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

func (h *HeartbeatService) publish(ctx context.Context, status string) {
	heartbeatMessage := models.Heartbeat{
		ClientID:  h.ClientID,
		Timestamp: time.Now(),
		Status:    status,
		Uptime:    time.Since(h.startedAt).Seconds(),
	}
	if h.Collectors != nil && status == constants.StatusAlive {
		heartbeatMessage.Metrics = h.Collectors.CollectEnabled(ctx, &h.MetricsConfig)
	}

	payload, err := json.Marshal(heartbeatMessage)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to serialize heartbeat message")
		return
	}

	h.MqttClient.PublishQoS(h.PubTopic, payload, h.QOS, h.Retain)
	h.Logger.Debug().Str("status", status).Msg("Heartbeat queued for publish")
}
