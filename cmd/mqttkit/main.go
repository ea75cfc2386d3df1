package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benmeehan/mqttkit/internal/constants"
	"github.com/benmeehan/mqttkit/internal/metrics_collectors"
	"github.com/benmeehan/mqttkit/internal/service_registry"
	"github.com/benmeehan/mqttkit/internal/utils"
	"github.com/benmeehan/mqttkit/pkg/client"
	"github.com/benmeehan/mqttkit/pkg/executor"
	"github.com/benmeehan/mqttkit/pkg/file"
	"github.com/benmeehan/mqttkit/pkg/identity"
	"github.com/benmeehan/mqttkit/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", constants.DefaultConfigFile, "path to the YAML configuration file")
	flag.Parse()

	// Set up structured logging
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configFile, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	level, _ := zerolog.ParseLevel(config.LogLevel)
	logger = logger.Level(level)

	// Append a per-run UUID to the client ID, or a persisted one when the
	// broker has to resume the session after a restart.
	suffix := uuid.New().String()
	if config.MQTT.IdentityFile != "" {
		clientInfo := identity.NewClientInfo(config.MQTT.IdentityFile, fileClient)
		if err := clientInfo.LoadOrCreate(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to load client identity")
		}
		suffix = clientInfo.GetClientID()
	}
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + suffix
	logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	session, err := mqtt.NewSession(config.SessionConfig(), fileClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT session")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	callbacks, closeCallbacks := newCallbackExecutor(config.Client.CallbackExecutor, logger)
	defer closeCallbacks()

	opts := config.ClientOptions()
	opts.CallbackExecutor = callbacks
	opts.Metrics = client.NewMetrics(promRegistry)
	mqttClient := client.New(session, opts, logger)

	mqttClient.SetOnConnectionLost(func(err error) {
		logger.Warn().Err(err).Msg("Connection to broker lost, waiting for reconnect")
	})
	mqttClient.SetOnReconnect(func() {
		logger.Info().Int("subscriptions", mqttClient.Registry().Len()).Msg("Reconnected to broker")
	})

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient,
		metrics_collectors.NewDefaultMetricsRegistry(logger), logger)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	var metricsServer *http.Server
	if config.MetricsServer.Enabled {
		metricsServer = startMetricsServer(config.MetricsServer.Address, promRegistry, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Services subscribe, so they start once the first connect succeeds.
	// Later reconnects restore their subscriptions without a restart.
	connectFailed := make(chan error, 1)
	fail := func(err error) {
		select {
		case connectFailed <- err:
		default:
		}
	}
	var startOnce sync.Once
	mqttClient.Connect(config.MQTT.Username, config.MQTT.Password, client.ConnectionListenerFuncs{
		Success: func() {
			startOnce.Do(func() {
				if err := serviceRegistry.StartServices(); err != nil {
					logger.Error().Err(err).Msg("Failed to start services")
					fail(err)
					return
				}
				logger.Info().Msg("All services started successfully")
			})
		},
		Failure: fail,
	})

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down gracefully...")
	case err := <-connectFailed:
		logger.Error().Err(err).Msg("Startup failed, shutting down")
		exitCode = 1
	}

	// Stopping services publishes through the client, which can stall while
	// the broker is unreachable. Close releases anything still waiting.
	servicesStopped := make(chan struct{})
	go func() {
		defer close(servicesStopped)
		if err := serviceRegistry.StopServices(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop services cleanly")
		}
	}()
	select {
	case <-servicesStopped:
	case <-time.After(config.Client.ShutdownGrace):
		logger.Warn().Dur("grace", config.Client.ShutdownGrace).Msg("Services did not stop in time, closing MQTT client")
	}
	if err := mqttClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close MQTT client cleanly")
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	if exitCode != 0 {
		closeCallbacks()
		os.Exit(exitCode)
	}
}

// newCallbackExecutor builds the executor named in config. The returned
// func releases it.
func newCallbackExecutor(name string, logger zerolog.Logger) (executor.Executor, func()) {
	switch name {
	case constants.ExecutorInline:
		return executor.Inline(), func() {}
	case constants.ExecutorSerial:
		serial := executor.NewSerial(constants.DefaultQueueSize, logger)
		return serial, serial.Close
	default:
		return executor.Goroutine(), func() {}
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("address", addr).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return server
}
