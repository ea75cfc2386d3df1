package mocks

import (
	"sync"
	"time"
)

// Token is a channel-backed mqtt.Token that tests complete by hand.
type Token struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// NewToken returns a Token that is still in flight.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// CompletedToken returns a Token that has already finished with err.
func CompletedToken(err error) *Token {
	t := NewToken()
	t.Complete(err)
	return t
}

// Complete finishes the token. Only the first call has an effect.
func (t *Token) Complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Token) Wait() bool {
	<-t.done
	return true
}

func (t *Token) WaitTimeout(timeout time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
