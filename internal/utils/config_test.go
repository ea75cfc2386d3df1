package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/mqttkit/internal/constants"
	"github.com/benmeehan/mqttkit/internal/mocks"
	"github.com/benmeehan/mqttkit/pkg/file"
	"github.com/benmeehan/mqttkit/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: "ssl://broker-a:8883, ssl://broker-b:8883"
  client_id: gateway
  identity_file: /var/lib/mqttkit/identity.json
  username: agent
  password: secret
  ca_certificate: /etc/mqttkit/ca.pem
  insecure_skip_verify: true
  persistence_dir: /var/lib/mqttkit
  clean_session: false
  auto_reconnect: true
  connect_timeout: 5s
  keep_alive: 30s
  max_reconnect_interval: 2m
  qos: 0
  disconnect_quiesce: 500
client:
  workers: 2
  queue_size: 8
  backpressure: reject
  shutdown_grace: 3s
  callback_executor: serial
services:
  heartbeat:
    enabled: true
    topic: devices/gateway/status
    interval: 15s
    qos: 1
    retain: true
    monitor_memory: true
    monitor_goroutines: true
  monitor:
    enabled: true
    global: true
    topics:
      - topic: sensors/1/temperature
        qos: 1
      - topic: alerts
        qos: 2
metrics_server:
  enabled: true
  address: ":9200"
log_level: debug
`)

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, []string{"ssl://broker-a:8883", "ssl://broker-b:8883"}, cfg.Brokers())
	assert.Equal(t, 0, *cfg.MQTT.QOS)
	assert.False(t, *cfg.MQTT.CleanSession)
	assert.Equal(t, 15*time.Second, cfg.Services.Heartbeat.Interval)
	assert.Len(t, cfg.Services.Monitor.Topics, 2)
	assert.Equal(t, "debug", cfg.LogLevel)

	session := cfg.SessionConfig()
	assert.Equal(t, "gateway", session.ClientID)
	assert.True(t, session.InsecureSkipVerify)
	assert.False(t, session.CleanSession)
	assert.True(t, session.AutoReconnect)
	assert.Equal(t, 5*time.Second, session.ConnectTimeout)
	assert.Equal(t, 30*time.Second, session.KeepAlive)
	assert.Equal(t, 2*time.Minute, session.MaxReconnectInterval)
	assert.Equal(t, "/var/lib/mqttkit", session.PersistenceDir)

	opts := cfg.ClientOptions()
	assert.Equal(t, 0, opts.QoS)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 8, opts.QueueSize)
	assert.Equal(t, workerpool.Reject, opts.Backpressure)
	assert.Equal(t, 3*time.Second, opts.ShutdownGrace)
	assert.Equal(t, uint(500), opts.DisconnectQuiesce)
	assert.False(t, opts.CleanSession)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker: tcp://localhost:1883\n")

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultClientID, cfg.MQTT.ClientID)
	assert.Equal(t, constants.DefaultQoS, *cfg.MQTT.QOS)
	assert.True(t, *cfg.MQTT.CleanSession)
	assert.True(t, *cfg.MQTT.AutoReconnect)
	assert.Equal(t, constants.DefaultConnectTimeout, cfg.MQTT.ConnectTimeout)
	assert.Equal(t, constants.DefaultKeepAlive, cfg.MQTT.KeepAlive)
	assert.Equal(t, uint(constants.DefaultDisconnectQuiesce), cfg.MQTT.DisconnectQuiesce)
	assert.Equal(t, constants.DefaultWorkers, cfg.Client.Workers)
	assert.Equal(t, constants.DefaultQueueSize, cfg.Client.QueueSize)
	assert.Equal(t, "block", cfg.Client.Backpressure)
	assert.Equal(t, constants.DefaultShutdownGrace, cfg.Client.ShutdownGrace)
	assert.Equal(t, constants.ExecutorGoroutine, cfg.Client.CallbackExecutor)
	assert.Equal(t, constants.DefaultMetricsAddress, cfg.MetricsServer.Address)
	assert.Equal(t, "info", cfg.LogLevel)

	opts := cfg.ClientOptions()
	assert.Equal(t, 1, opts.QoS)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
}

func TestLoadConfig_UnknownField(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  broker: tcp://localhost:1883\n  brokr: typo\n")

	_, err := LoadConfig(path, file.NewFileService())
	assert.Error(t, err)
}

func TestLoadConfig_ReadError(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	readErr := errors.New("permission denied")
	fileClient.On("ReadYamlFile", "config.yaml", mock.Anything).Return(readErr)

	cfg, err := LoadConfig("config.yaml", fileClient)

	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, readErr)
	fileClient.AssertExpectations(t)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing broker",
			mutate:  func(c *Config) { c.MQTT.Broker = " , " },
			wantErr: "mqtt.broker is required",
		},
		{
			name:    "bad default qos",
			mutate:  func(c *Config) { q := 3; c.MQTT.QOS = &q },
			wantErr: "mqtt.qos must be 0, 1 or 2",
		},
		{
			name:    "unknown backpressure",
			mutate:  func(c *Config) { c.Client.Backpressure = "drop" },
			wantErr: "client.backpressure",
		},
		{
			name: "persistent session without identity",
			mutate: func(c *Config) {
				off := false
				c.MQTT.CleanSession = &off
			},
			wantErr: "mqtt.identity_file is required",
		},
		{
			name:    "unknown executor",
			mutate:  func(c *Config) { c.Client.CallbackExecutor = "fiber" },
			wantErr: `unknown executor "fiber"`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "log_level",
		},
		{
			name: "heartbeat without topic",
			mutate: func(c *Config) {
				c.Services.Heartbeat.Enabled = true
			},
			wantErr: "services.heartbeat.topic is required",
		},
		{
			name: "duplicate monitor topics",
			mutate: func(c *Config) {
				c.Services.Monitor.Enabled = true
				c.Services.Monitor.Topics = []TopicConfig{{Topic: "a"}, {Topic: "a"}}
			},
			wantErr: "duplicates: a",
		},
		{
			name: "monitor wildcard topic",
			mutate: func(c *Config) {
				c.Services.Monitor.Enabled = true
				c.Services.Monitor.Topics = []TopicConfig{{Topic: "sensors/#"}}
			},
			wantErr: "must not contain wildcards",
		},
		{
			name: "monitor qos out of range",
			mutate: func(c *Config) {
				c.Services.Monitor.Enabled = true
				c.Services.Monitor.Topics = []TopicConfig{{Topic: "a", QOS: 5}}
			},
			wantErr: "services.monitor.topics[0].qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{MQTT: MQTTConfig{Broker: "tcp://localhost:1883"}}
			cfg.ApplyDefaults()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Client.Backpressure = "drop"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.broker is required")
	assert.Contains(t, err.Error(), "client.backpressure")
}

func TestDuplicates(t *testing.T) {
	assert.Empty(t, Duplicates([]string{"a", "b"}))
	assert.Equal(t, []string{"b", "a"}, Duplicates([]string{"a", "b", "b", "a", "b"}))
}
