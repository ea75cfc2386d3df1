package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benmeehan/mqttkit/internal/constants"
	"github.com/benmeehan/mqttkit/pkg/client"
	"github.com/benmeehan/mqttkit/pkg/file"
	"github.com/benmeehan/mqttkit/pkg/mqtt"
	"github.com/benmeehan/mqttkit/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Client        ClientConfig        `yaml:"client"`
	Services      ServicesConfig      `yaml:"services"`
	MetricsServer MetricsServerConfig `yaml:"metrics_server"`
	LogLevel      string              `yaml:"log_level"` // zerolog level name, defaults to info
}

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker               string        `yaml:"broker"`                 // Broker URL, comma separated for several
	ClientID             string        `yaml:"client_id"`              // Client ID prefix
	IdentityFile         string        `yaml:"identity_file"`          // Keeps the client ID suffix across restarts
	Username             string        `yaml:"username"`               // Optional username
	Password             string        `yaml:"password"`               // Optional password
	CACertificate        string        `yaml:"ca_certificate"`         // Path to the CA certificate
	InsecureSkipVerify   bool          `yaml:"insecure_skip_verify"`   // Skip broker certificate checks
	PersistenceDir       string        `yaml:"persistence_dir"`        // In-flight message store, memory when empty
	CleanSession         *bool         `yaml:"clean_session"`          // Defaults to true
	AutoReconnect        *bool         `yaml:"auto_reconnect"`         // Defaults to true
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`        // Timeout for a single connect
	KeepAlive            time.Duration `yaml:"keep_alive"`             // Keep-alive interval
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"` // Cap on reconnect backoff
	QOS                  *int          `yaml:"qos"`                    // Default QoS, 1 when unset
	DisconnectQuiesce    uint          `yaml:"disconnect_quiesce"`     // Milliseconds
}

// ClientConfig sizes the facade's worker pool and picks its callback executor.
type ClientConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	Backpressure     string        `yaml:"backpressure"` // "block" or "reject"
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
	CallbackExecutor string        `yaml:"callback_executor"` // "inline", "goroutine" or "serial"
}

// ServicesConfig groups the agent services.
type ServicesConfig struct {
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// HeartbeatConfig configures the periodic status publisher.
type HeartbeatConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Topic             string        `yaml:"topic"`
	Interval          time.Duration `yaml:"interval"`
	QOS               int           `yaml:"qos"`
	Retain            bool          `yaml:"retain"`
	MonitorMemory     bool          `yaml:"monitor_memory"`
	MonitorGoroutines bool          `yaml:"monitor_goroutines"`
}

// MonitorConfig configures the topic monitor.
type MonitorConfig struct {
	Enabled bool          `yaml:"enabled"`
	Topics  []TopicConfig `yaml:"topics"`
	Global  bool          `yaml:"global"` // Also log every message through the global handler
}

// TopicConfig is a single monitored topic.
type TopicConfig struct {
	Topic string `yaml:"topic"`
	QOS   int    `yaml:"qos"`
}

// MetricsServerConfig configures the Prometheus endpoint.
type MetricsServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig loads the YAML configuration from the specified file, fills
// in defaults and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	m := &c.MQTT
	if m.ClientID == "" {
		m.ClientID = constants.DefaultClientID
	}
	if m.CleanSession == nil {
		m.CleanSession = boolPtr(true)
	}
	if m.AutoReconnect == nil {
		m.AutoReconnect = boolPtr(true)
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = constants.DefaultConnectTimeout
	}
	if m.KeepAlive == 0 {
		m.KeepAlive = constants.DefaultKeepAlive
	}
	if m.MaxReconnectInterval == 0 {
		m.MaxReconnectInterval = constants.DefaultMaxReconnectInterval
	}
	if m.QOS == nil {
		qos := constants.DefaultQoS
		m.QOS = &qos
	}
	if m.DisconnectQuiesce == 0 {
		m.DisconnectQuiesce = constants.DefaultDisconnectQuiesce
	}

	cl := &c.Client
	if cl.Workers == 0 {
		cl.Workers = constants.DefaultWorkers
	}
	if cl.QueueSize == 0 {
		cl.QueueSize = constants.DefaultQueueSize
	}
	if cl.Backpressure == "" {
		cl.Backpressure = "block"
	}
	if cl.ShutdownGrace == 0 {
		cl.ShutdownGrace = constants.DefaultShutdownGrace
	}
	if cl.CallbackExecutor == "" {
		cl.CallbackExecutor = constants.ExecutorGoroutine
	}

	if c.Services.Heartbeat.Interval == 0 {
		c.Services.Heartbeat.Interval = constants.DefaultHeartbeatInterval
	}
	if c.MetricsServer.Address == "" {
		c.MetricsServer.Address = constants.DefaultMetricsAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = zerolog.InfoLevel.String()
	}
}

// Validate reports every problem found in the config at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Brokers()) == 0 {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if !derefBool(c.MQTT.CleanSession, true) && c.MQTT.IdentityFile == "" {
		errs = append(errs, errors.New("mqtt.identity_file is required when clean_session is false"))
	}
	if c.MQTT.QOS != nil && !validQoS(*c.MQTT.QOS) {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", *c.MQTT.QOS))
	}
	if _, err := workerpool.ParsePolicy(c.Client.Backpressure); err != nil {
		errs = append(errs, fmt.Errorf("client.backpressure: %w", err))
	}
	switch c.Client.CallbackExecutor {
	case constants.ExecutorInline, constants.ExecutorGoroutine, constants.ExecutorSerial:
	default:
		errs = append(errs, fmt.Errorf("client.callback_executor: unknown executor %q", c.Client.CallbackExecutor))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	hb := c.Services.Heartbeat
	if hb.Enabled {
		if hb.Topic == "" {
			errs = append(errs, errors.New("services.heartbeat.topic is required when enabled"))
		}
		if !validQoS(hb.QOS) {
			errs = append(errs, fmt.Errorf("services.heartbeat.qos must be 0, 1 or 2, got %d", hb.QOS))
		}
		if hb.Interval < 0 {
			errs = append(errs, errors.New("services.heartbeat.interval must be positive"))
		}
	}

	mon := c.Services.Monitor
	if mon.Enabled {
		topics := make([]string, 0, len(mon.Topics))
		for i, t := range mon.Topics {
			if t.Topic == "" {
				errs = append(errs, fmt.Errorf("services.monitor.topics[%d].topic is required", i))
			}
			// Inbound messages are routed by exact topic, so a filter would never match.
			if strings.ContainsAny(t.Topic, "+#") {
				errs = append(errs, fmt.Errorf("services.monitor.topics[%d].topic must not contain wildcards", i))
			}
			if !validQoS(t.QOS) {
				errs = append(errs, fmt.Errorf("services.monitor.topics[%d].qos must be 0, 1 or 2, got %d", i, t.QOS))
			}
			topics = append(topics, t.Topic)
		}
		if dups := Duplicates(topics); len(dups) > 0 {
			errs = append(errs, fmt.Errorf("services.monitor.topics contains duplicates: %s", strings.Join(dups, ", ")))
		}
	}

	return errors.Join(errs...)
}

// Brokers splits the configured broker string into URLs.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.MQTT.Broker, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// SessionConfig converts the mqtt section for mqtt.NewSession.
func (c *Config) SessionConfig() mqtt.SessionConfig {
	return mqtt.SessionConfig{
		Brokers:              c.Brokers(),
		ClientID:             c.MQTT.ClientID,
		CACertificate:        c.MQTT.CACertificate,
		InsecureSkipVerify:   c.MQTT.InsecureSkipVerify,
		PersistenceDir:       c.MQTT.PersistenceDir,
		CleanSession:         derefBool(c.MQTT.CleanSession, true),
		AutoReconnect:        derefBool(c.MQTT.AutoReconnect, true),
		ConnectTimeout:       c.MQTT.ConnectTimeout,
		KeepAlive:            c.MQTT.KeepAlive,
		MaxReconnectInterval: c.MQTT.MaxReconnectInterval,
	}
}

// ClientOptions converts the mqtt and client sections for client.New. The
// callback executor, error sink and metrics are left for the caller.
func (c *Config) ClientOptions() client.Options {
	opts := client.DefaultOptions()
	if c.MQTT.QOS != nil {
		opts.QoS = *c.MQTT.QOS
	}
	opts.Workers = c.Client.Workers
	opts.QueueSize = c.Client.QueueSize
	opts.Backpressure, _ = workerpool.ParsePolicy(c.Client.Backpressure)
	opts.ShutdownGrace = c.Client.ShutdownGrace
	opts.DisconnectQuiesce = c.MQTT.DisconnectQuiesce
	opts.AutoReconnect = derefBool(c.MQTT.AutoReconnect, true)
	opts.CleanSession = derefBool(c.MQTT.CleanSession, true)
	return opts
}

func validQoS(qos int) bool {
	return qos >= 0 && qos <= 2
}

func boolPtr(b bool) *bool {
	return &b
}

func derefBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
