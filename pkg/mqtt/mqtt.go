package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/mqttkit/pkg/file"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("mqtt: session closed")

// SessionConfig holds the options used to build the underlying paho client.
type SessionConfig struct {
	Brokers              []string
	ClientID             string
	CACertificate        string // optional PEM file appended to the root pool
	InsecureSkipVerify   bool
	PersistenceDir       string // FileStore directory; memory store when empty
	CleanSession         bool
	AutoReconnect        bool
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
}

// Session adapts a paho client to the Transport interface and turns paho's
// callbacks into EventHandler calls.
type Session struct {
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger

	handlerMu sync.RWMutex
	handler   EventHandler

	credMu sync.RWMutex
	creds  Credentials

	// explicitConnect is set by Connect and cleared by the first OnConnect
	// that follows, which is therefore not a reconnect.
	explicitConnect atomic.Bool
	closed          atomic.Bool
}

// NewSession builds the paho client options and client. It does not connect.
func NewSession(cfg SessionConfig, fileClient file.FileOperations, logger zerolog.Logger) (*Session, error) {
	return newSession(cfg, fileClient, logger, func(opts *mqtt.ClientOptions) MQTTClient {
		return mqtt.NewClient(opts)
	})
}

func newSession(cfg SessionConfig, fileClient file.FileOperations, logger zerolog.Logger,
	newClient func(*mqtt.ClientOptions) MQTTClient) (*Session, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("mqtt: at least one broker is required")
	}

	s := &Session{
		fileClient: fileClient,
		logger:     logger,
	}

	opts, err := s.buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	s.client = newClient(opts)
	return s, nil
}

// buildClientOptions sets up the paho options, including TLS for secure
// broker schemes and the persistence store.
func (s *Session) buildClientOptions(cfg SessionConfig) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	secure := false
	for _, broker := range cfg.Brokers {
		u, err := url.Parse(broker)
		if err != nil {
			return nil, fmt.Errorf("mqtt: invalid broker URL %q: %w", broker, err)
		}
		if isSecureScheme(u.Scheme) {
			secure = true
		}
		opts.AddBroker(broker)
	}

	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetResumeSubs(false)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}

	if cfg.PersistenceDir != "" {
		opts.SetStore(mqtt.NewFileStore(cfg.PersistenceDir))
	} else {
		opts.SetStore(mqtt.NewMemoryStore())
	}

	if secure {
		tlsConfig, err := s.buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetCredentialsProvider(s.credentials)
	opts.SetOnConnectHandler(s.handleConnect)
	opts.SetConnectionLostHandler(s.handleConnectionLost)
	opts.SetReconnectingHandler(s.handleReconnecting)
	opts.SetDefaultPublishHandler(s.handleMessage)

	return opts, nil
}

// buildTLSConfig forwards the configured trust settings unchanged.
func (s *Session) buildTLSConfig(cfg SessionConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CACertificate == "" {
		return tlsConfig, nil
	}

	caCert, err := s.fileClient.ReadFileRaw(cfg.CACertificate)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	// Create a CA certificate pool and append the CA certificate to it
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return tlsConfig, nil
}

func isSecureScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	}
	return false
}

// SetEventHandler installs the receiver of transport events.
func (s *Session) SetEventHandler(h EventHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

func (s *Session) eventHandler() EventHandler {
	if s.closed.Load() {
		return nil
	}
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.handler
}

func (s *Session) credentials() (string, string) {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.creds.Username, s.creds.Password
}

// Connect connects to the MQTT broker with the given credentials.
func (s *Session) Connect(creds Credentials) mqtt.Token {
	if s.closed.Load() {
		return failedToken(ErrSessionClosed)
	}
	s.credMu.Lock()
	s.creds = creds
	s.credMu.Unlock()

	s.explicitConnect.Store(true)
	return s.client.Connect()
}

// Publish sends a message to the specified topic. The caller owns the
// returned token and logs its outcome.
func (s *Session) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if s.closed.Load() {
		return failedToken(ErrSessionClosed)
	}
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to topic on the wire. Messages are routed through
// the default publish handler to OnMessage, so no per-topic paho callback
// is installed.
func (s *Session) Subscribe(topic string, qos byte) mqtt.Token {
	if s.closed.Load() {
		return failedToken(ErrSessionClosed)
	}
	return s.client.Subscribe(topic, qos, nil)
}

// Unsubscribe unsubscribes from the specified topic.
func (s *Session) Unsubscribe(topic string) mqtt.Token {
	if s.closed.Load() {
		return failedToken(ErrSessionClosed)
	}
	return s.client.Unsubscribe(topic)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *Session) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}

// IsConnected reports whether the paho client currently has a connection.
func (s *Session) IsConnected() bool {
	return !s.closed.Load() && s.client.IsConnected()
}

// Close releases the session. Events arriving afterwards are ignored and
// further operations fail with ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.client.IsConnected() {
		s.client.Disconnect(0)
	}
	s.SetEventHandler(nil)
	s.logger.Debug().Msg("MQTT session closed")
	return nil
}

func (s *Session) handleConnect(_ mqtt.Client) {
	reconnect := !s.explicitConnect.Swap(false)
	s.logger.Info().Bool("reconnect", reconnect).Msg("Connected to MQTT broker")
	if h := s.eventHandler(); h != nil {
		h.OnConnected(reconnect)
	}
}

func (s *Session) handleConnectionLost(_ mqtt.Client, err error) {
	s.logger.Warn().Err(err).Msg("MQTT connection lost")
	if h := s.eventHandler(); h != nil {
		h.OnConnectionLost(err)
	}
}

func (s *Session) handleReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	s.logger.Debug().Msg("Reconnecting to MQTT broker")
	if h := s.eventHandler(); h != nil {
		h.OnReconnecting()
	}
}

func (s *Session) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.logger.Debug().Str("topic", msg.Topic()).Int("bytes", len(msg.Payload())).Msg("Message arrived")
	if h := s.eventHandler(); h != nil {
		h.OnMessage(msg.Topic(), msg.Payload())
	}
}
