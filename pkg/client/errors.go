package client

import (
	"errors"
	"fmt"
)

// Domain-specific errors for facade operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed marks a failed connect attempt (network or auth).
	ErrConnectFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed marks a publish that was dropped or rejected.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed marks a subscribe that was dropped or rejected.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed marks a wire unsubscribe that failed.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrResubscribeFailed marks a single topic that could not be restored
	// after a reconnect. It never aborts the remaining topics.
	ErrResubscribeFailed = errors.New("mqtt: resubscribe failed")

	// ErrDisconnectFailed marks a disconnect that could not be queued.
	ErrDisconnectFailed = errors.New("mqtt: disconnect failed")

	// ErrHandlerFailed marks a message handler that returned an error or panicked.
	ErrHandlerFailed = errors.New("mqtt: message handler failed")

	// ErrNotConnected is the cause when an operation is attempted offline.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectAborted is the cause when Disconnect or Close ran while a
	// connect attempt was still pending.
	ErrConnectAborted = errors.New("mqtt: connect aborted by disconnect")

	// ErrClosed is the cause when an operation is attempted after Close.
	ErrClosed = errors.New("mqtt: client closed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidHandler is returned when a nil handler is provided.
	ErrInvalidHandler = errors.New("mqtt: handler cannot be nil")
)

// Op names the facade operation an OpError belongs to.
type Op string

const (
	OpConnect     Op = "connect"
	OpPublish     Op = "publish"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpResubscribe Op = "resubscribe"
	OpDisconnect  Op = "disconnect"
	OpDispatch    Op = "dispatch"
)

var opSentinels = map[Op]error{
	OpConnect:     ErrConnectFailed,
	OpPublish:     ErrPublishFailed,
	OpSubscribe:   ErrSubscribeFailed,
	OpUnsubscribe: ErrUnsubscribeFailed,
	OpResubscribe: ErrResubscribeFailed,
	OpDisconnect:  ErrDisconnectFailed,
	OpDispatch:    ErrHandlerFailed,
}

// OpError is what the facade hands to the ErrorSink.
type OpError struct {
	Op    Op
	Topic string
	Err   error
}

func (e *OpError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("%v: %v", opSentinels[e.Op], e.Err)
	}
	return fmt.Sprintf("%v (topic %q): %v", opSentinels[e.Op], e.Topic, e.Err)
}

// Unwrap exposes both the operation sentinel and the cause.
func (e *OpError) Unwrap() []error {
	return []error{opSentinels[e.Op], e.Err}
}

// ErrorSink receives every failure the facade swallows. Use errors.As to
// get at the *OpError.
type ErrorSink func(err error)
