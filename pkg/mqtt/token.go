package mqtt

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// errorToken is an already completed mqtt.Token carrying err.
type errorToken struct {
	err  error
	done chan struct{}
}

var _ mqtt.Token = (*errorToken)(nil)

func failedToken(err error) *errorToken {
	done := make(chan struct{})
	close(done)
	return &errorToken{err: err, done: done}
}

func (t *errorToken) Wait() bool                     { return true }
func (t *errorToken) WaitTimeout(time.Duration) bool { return true }
func (t *errorToken) Done() <-chan struct{}          { return t.done }
func (t *errorToken) Error() error                   { return t.err }
