package mqtt_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/benmeehan/mqttkit/internal/mocks"
	"github.com/benmeehan/mqttkit/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) OnConnected(isReconnect bool)           { m.Called(isReconnect) }
func (m *mockEvents) OnConnectionLost(err error)             { m.Called(err) }
func (m *mockEvents) OnReconnecting()                        { m.Called() }
func (m *mockEvents) OnMessage(topic string, payload []byte) { m.Called(topic, payload) }

// newTestSession builds a Session over a mock client and returns the paho
// options it produced.
func newTestSession(t *testing.T, cfg mqtt.SessionConfig, files *mocks.MockFileOperations) (*mqtt.Session, *mocks.MockMQTTClient, *mqttLib.ClientOptions) {
	t.Helper()
	client := new(mocks.MockMQTTClient)
	var captured *mqttLib.ClientOptions
	if files == nil {
		files = new(mocks.MockFileOperations)
	}
	s, err := mqtt.NewSessionWithClient(cfg, files, zerolog.Nop(), func(o *mqttLib.ClientOptions) mqtt.MQTTClient {
		captured = o
		return client
	})
	require.NoError(t, err)
	require.NotNil(t, captured)
	return s, client, captured
}

func TestNewSession_RequiresBroker(t *testing.T) {
	_, err := mqtt.NewSession(mqtt.SessionConfig{ClientID: "x"}, new(mocks.MockFileOperations), zerolog.Nop())
	assert.Error(t, err)
}

func TestNewSession_InvalidBrokerURL(t *testing.T) {
	_, err := mqtt.NewSession(mqtt.SessionConfig{Brokers: []string{"://bad"}}, new(mocks.MockFileOperations), zerolog.Nop())
	assert.Error(t, err)
}

func TestNewSession_PlainOptions(t *testing.T) {
	_, _, opts := newTestSession(t, mqtt.SessionConfig{
		Brokers:       []string{"tcp://localhost:1883"},
		ClientID:      "agent-1",
		CleanSession:  true,
		AutoReconnect: true,
	}, nil)

	assert.Equal(t, "agent-1", opts.ClientID)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	assert.False(t, opts.ResumeSubs)
	assert.Nil(t, opts.TLSConfig)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
}

func TestNewSession_TLSPassThrough(t *testing.T) {
	_, _, opts := newTestSession(t, mqtt.SessionConfig{
		Brokers:            []string{"ssl://broker:8883"},
		InsecureSkipVerify: true,
	}, nil)

	require.NotNil(t, opts.TLSConfig)
	assert.True(t, opts.TLSConfig.InsecureSkipVerify)
	assert.Nil(t, opts.TLSConfig.RootCAs)
}

func TestNewSession_CACertificateReadError(t *testing.T) {
	files := new(mocks.MockFileOperations)
	files.On("ReadFileRaw", "/etc/ca.pem").Return(nil, errors.New("no such file"))

	_, err := mqtt.NewSessionWithClient(mqtt.SessionConfig{
		Brokers:       []string{"mqtts://broker:8883"},
		CACertificate: "/etc/ca.pem",
	}, files, zerolog.Nop(), func(*mqttLib.ClientOptions) mqtt.MQTTClient { return new(mocks.MockMQTTClient) })

	assert.ErrorContains(t, err, "failed to read CA certificate")
	files.AssertExpectations(t)
}

func TestNewSession_CACertificateInvalidPEM(t *testing.T) {
	files := new(mocks.MockFileOperations)
	files.On("ReadFileRaw", "/etc/ca.pem").Return([]byte("not a certificate"), nil)

	_, err := mqtt.NewSessionWithClient(mqtt.SessionConfig{
		Brokers:       []string{"ssl://broker:8883"},
		CACertificate: "/etc/ca.pem",
	}, files, zerolog.Nop(), func(*mqttLib.ClientOptions) mqtt.MQTTClient { return new(mocks.MockMQTTClient) })

	assert.ErrorContains(t, err, "failed to append CA certificate")
}

func TestSession_ConnectForwardsCredentials(t *testing.T) {
	s, client, opts := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("Connect").Return(mocks.CompletedToken(nil))

	token := s.Connect(mqtt.Credentials{Username: "user", Password: "secret"})
	require.NoError(t, token.Error())

	user, pass := opts.CredentialsProvider()
	assert.Equal(t, "user", user)
	assert.Equal(t, "secret", pass)
	client.AssertExpectations(t)
}

func TestSession_ReconnectDetection(t *testing.T) {
	s, client, opts := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("Connect").Return(mocks.CompletedToken(nil))

	events := new(mockEvents)
	events.On("OnConnected", false).Once()
	events.On("OnConnected", true).Twice()
	s.SetEventHandler(events)

	s.Connect(mqtt.Credentials{})
	opts.OnConnect(nil) // initial
	opts.OnConnect(nil) // automatic reconnect
	opts.OnConnect(nil) // another one

	events.AssertExpectations(t)
}

func TestSession_ExplicitConnectAfterDisconnectIsInitial(t *testing.T) {
	s, client, opts := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("Connect").Return(mocks.CompletedToken(nil))
	client.On("Disconnect", uint(250)).Return()

	events := new(mockEvents)
	events.On("OnConnected", false).Twice()
	s.SetEventHandler(events)

	s.Connect(mqtt.Credentials{})
	opts.OnConnect(nil)
	s.Disconnect(250)
	s.Connect(mqtt.Credentials{})
	opts.OnConnect(nil)

	events.AssertExpectations(t)
}

func TestSession_ForwardsEvents(t *testing.T) {
	s, _, opts := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	lost := errors.New("EOF")

	events := new(mockEvents)
	events.On("OnConnectionLost", lost).Once()
	events.On("OnReconnecting").Once()
	events.On("OnMessage", "a/b", []byte("hello")).Once()
	s.SetEventHandler(events)

	opts.OnConnectionLost(nil, lost)
	opts.OnReconnecting(nil, opts)
	opts.DefaultPublishHandler(nil, mocks.NewMockMessage("a/b", []byte("hello")))

	events.AssertExpectations(t)
}

func TestSession_SubscribeUsesDefaultRoute(t *testing.T) {
	s, client, _ := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("Subscribe", "a/b", byte(2), mock.MatchedBy(func(cb mqttLib.MessageHandler) bool {
		return cb == nil
	})).Return(mocks.CompletedToken(nil))
	client.On("Unsubscribe", []string{"a/b"}).Return(mocks.CompletedToken(nil))

	assert.NoError(t, s.Subscribe("a/b", 2).Error())
	assert.NoError(t, s.Unsubscribe("a/b").Error())
	client.AssertExpectations(t)
}

func TestSession_Publish(t *testing.T) {
	s, client, _ := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("Publish", "a/b", byte(1), true, []byte("v")).Return(mocks.CompletedToken(nil))

	token := s.Publish("a/b", 1, true, []byte("v"))
	assert.True(t, token.Wait())
	assert.NoError(t, token.Error())
	client.AssertExpectations(t)
}

func TestSession_PublishReturnsTransportToken(t *testing.T) {
	s, client, _ := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	pending := mocks.NewToken()
	client.On("Publish", "a/b", byte(1), false, []byte("v")).Return(pending)

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		assert.Same(t, pending, s.Publish("a/b", 1, false, []byte("v")))
	}
	assert.Less(t, runtime.NumGoroutine(), before+20)
}

func TestSession_Close(t *testing.T) {
	s, client, opts := newTestSession(t, mqtt.SessionConfig{Brokers: []string{"tcp://b:1883"}}, nil)
	client.On("IsConnected").Return(false)

	events := new(mockEvents)
	s.SetEventHandler(events)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.False(t, s.IsConnected())
	assert.ErrorIs(t, s.Connect(mqtt.Credentials{}).Error(), mqtt.ErrSessionClosed)
	assert.ErrorIs(t, s.Publish("a", 0, false, nil).Error(), mqtt.ErrSessionClosed)
	assert.ErrorIs(t, s.Subscribe("a", 0).Error(), mqtt.ErrSessionClosed)
	assert.ErrorIs(t, s.Unsubscribe("a").Error(), mqtt.ErrSessionClosed)

	// Late paho callbacks are ignored.
	opts.DefaultPublishHandler(nil, mocks.NewMockMessage("a", nil))
	events.AssertNotCalled(t, "OnMessage", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "Disconnect", mock.Anything)
}
