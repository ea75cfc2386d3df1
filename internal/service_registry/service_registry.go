package service_registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/mqttkit/internal/metrics_collectors"
	"github.com/benmeehan/mqttkit/internal/models"
	"github.com/benmeehan/mqttkit/internal/services"
	"github.com/benmeehan/mqttkit/internal/utils"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	mu          sync.Mutex
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	started     []string           // Services currently running, in start order

	mqttClient services.MessagingClient
	collectors *metrics_collectors.MetricsRegistry
	Logger     zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient services.MessagingClient, collectors *metrics_collectors.MetricsRegistry,
	logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		collectors: collectors,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered service names in registration order.
func (sr *ServiceRegistry) Names() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			_ = sr.stopStarted()
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		sr.started = append(sr.started, name)
	}

	return nil
}

// StopServices stops the running services in reverse start order.
func (sr *ServiceRegistry) StopServices() error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.stopStarted()
}

func (sr *ServiceRegistry) stopStarted() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "heartbeat",
			enabled: config.Services.Heartbeat.Enabled,
			constructor: func() (Service, error) {
				hb := config.Services.Heartbeat
				return services.NewHeartbeatService(
					hb.Topic,
					hb.Interval,
					hb.QOS,
					hb.Retain,
					config.MQTT.ClientID,
					models.MetricsConfig{
						MonitorMemory:     hb.MonitorMemory,
						MonitorGoroutines: hb.MonitorGoroutines,
					},
					sr.collectors,
					sr.mqttClient,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "monitor",
			enabled: config.Services.Monitor.Enabled,
			constructor: func() (Service, error) {
				mon := config.Services.Monitor
				if len(mon.Topics) == 0 && !mon.Global {
					return nil, errors.New("monitor service has no topics and no global handler")
				}
				topics := make([]services.MonitoredTopic, 0, len(mon.Topics))
				for _, t := range mon.Topics {
					topics = append(topics, services.MonitoredTopic{Topic: t.Topic, QOS: t.QOS})
				}
				return services.NewMonitorService(topics, mon.Global, sr.mqttClient, sr.Logger), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
