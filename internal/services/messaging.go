package services

import "github.com/benmeehan/mqttkit/pkg/registry"

// MessagingClient is the part of client.Client the services use. Every
// method is fire-and-forget; failures reach the client's error sink.
type MessagingClient interface {
	PublishQoS(topic string, payload []byte, qos int, retain bool)
	SubscribeQoS(topic string, handler registry.Handler, qos int)
	Unsubscribe(topic string)
	SetGlobalHandler(h registry.Handler)
}
