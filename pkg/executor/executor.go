// Package executor provides the callback execution contexts used to move
// user callbacks off the MQTT library's network goroutines.
package executor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Executor accepts a unit of work and runs it according to its own policy.
type Executor interface {
	Execute(task func())
}

// Func adapts an ordinary function to the Executor interface.
type Func func(task func())

// Execute calls f(task).
func (f Func) Execute(task func()) {
	f(task)
}

// Inline returns an Executor that runs every task synchronously on the
// calling goroutine. Intended for server use where handlers are cheap.
func Inline() Executor {
	return Func(func(task func()) { task() })
}

// Goroutine returns an Executor that runs every task in a new goroutine.
func Goroutine() Executor {
	return Func(func(task func()) { go task() })
}

// Serial runs tasks one at a time, in submission order, on a single
// goroutine. It behaves like a UI main-loop poster.
type Serial struct {
	tasks  chan func()
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewSerial starts a Serial executor whose queue holds up to buffer tasks.
func NewSerial(buffer int, logger zerolog.Logger) *Serial {
	if buffer < 0 {
		buffer = 0
	}
	s := &Serial{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.done)
	for task := range s.tasks {
		s.run(task)
	}
}

// run keeps the loop alive when a task panics.
func (s *Serial) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprint(r)).Msg("Serial executor task panicked")
		}
	}()
	task()
}

// Execute queues task. It blocks while the queue is full. Tasks submitted
// after Close are dropped.
func (s *Serial) Execute(task func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn().Msg("Serial executor is closed, dropping task")
		return
	}
	s.tasks <- task
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (s *Serial) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.tasks)
		s.mu.Unlock()
	})
	<-s.done
}
