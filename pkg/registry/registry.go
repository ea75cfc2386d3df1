// Package registry keeps the topic-to-handler mappings used to dispatch
// inbound MQTT messages and to rebuild wire subscriptions after a reconnect.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benmeehan/mqttkit/pkg/executor"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// ErrHandlerPanic wraps the value recovered from a panicking handler.
var ErrHandlerPanic = errors.New("registry: handler panicked")

// Handler is invoked for every message received on a topic.
// A returned error is reported, it does not affect acknowledgement.
type Handler func(topic string, payload []byte) error

// ErrorReporter receives handler failures.
type ErrorReporter func(topic string, err error)

// Registration is a single topic subscription.
type Registration struct {
	Topic   string
	QoS     byte
	Handler Handler
}

// Registry maps exact topic filters to handlers. It is safe for concurrent
// use: dispatch reads and register/unregister writes need no external lock.
type Registry struct {
	topics cmap.ConcurrentMap[string, Registration]

	globalMu sync.RWMutex
	global   Handler

	executor executor.Executor
	report   ErrorReporter
	logger   zerolog.Logger
}

// New creates an empty Registry. Dispatched handlers run on exec; a nil
// exec runs them inline. report may be nil.
func New(exec executor.Executor, report ErrorReporter, logger zerolog.Logger) *Registry {
	if exec == nil {
		exec = executor.Inline()
	}
	if report == nil {
		report = func(string, error) {}
	}
	return &Registry{
		topics:   cmap.New[Registration](),
		executor: exec,
		report:   report,
		logger:   logger,
	}
}

// Register inserts or replaces the mapping for topic and returns the
// registration it replaced, if any.
func (r *Registry) Register(topic string, qos byte, handler Handler) (prev Registration, replaced bool) {
	reg := Registration{Topic: topic, QoS: qos, Handler: handler}
	r.topics.Upsert(topic, reg, func(exist bool, inMap Registration, newValue Registration) Registration {
		prev, replaced = inMap, exist
		return newValue
	})
	r.logger.Debug().Str("topic", topic).Uint8("qos", qos).Bool("replaced", replaced).Msg("Topic registered")
	return prev, replaced
}

// Restore puts back a registration returned by Register or Unregister.
func (r *Registry) Restore(reg Registration) {
	r.topics.Set(reg.Topic, reg)
}

// Unregister removes the mapping for topic. It is a no-op when absent.
func (r *Registry) Unregister(topic string) (Registration, bool) {
	reg, ok := r.topics.Pop(topic)
	if ok {
		r.logger.Debug().Str("topic", topic).Msg("Topic unregistered")
	}
	return reg, ok
}

// Lookup returns the registration for an exact topic.
func (r *Registry) Lookup(topic string) (Registration, bool) {
	return r.topics.Get(topic)
}

// Has reports whether topic is registered.
func (r *Registry) Has(topic string) bool {
	return r.topics.Has(topic)
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	return r.topics.Count()
}

// Topics returns the registered topic filters, sorted.
func (r *Registry) Topics() []string {
	keys := r.topics.Keys()
	sort.Strings(keys)
	return keys
}

// Snapshot copies the current registrations, sorted by topic. No lock is
// held once it returns, so callers may perform network I/O while the
// registry keeps changing.
func (r *Registry) Snapshot() []Registration {
	items := r.topics.Items()
	regs := make([]Registration, 0, len(items))
	for _, reg := range items {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Topic < regs[j].Topic })
	return regs
}

// SetGlobalHandler installs a handler called for every message. Pass nil
// to remove it.
func (r *Registry) SetGlobalHandler(h Handler) {
	r.globalMu.Lock()
	r.global = h
	r.globalMu.Unlock()
}

// GlobalHandler returns the current global handler, or nil.
func (r *Registry) GlobalHandler() Handler {
	r.globalMu.RLock()
	defer r.globalMu.RUnlock()
	return r.global
}

// Dispatch delivers a message on the registry's executor: first to the
// handler registered for exactly this topic, then to the global handler.
// Each call is isolated, so one failing does not skip the other.
func (r *Registry) Dispatch(topic string, payload []byte) {
	r.executor.Execute(func() {
		if reg, ok := r.topics.Get(topic); ok && reg.Handler != nil {
			r.invoke("topic", reg.Handler, topic, payload)
		}
		if global := r.GlobalHandler(); global != nil {
			r.invoke("global", global, topic, payload)
		}
	})
}

func (r *Registry) invoke(kind string, h Handler, topic string, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("topic", topic).Str("handler", kind).Str("panic", fmt.Sprint(rec)).
				Msg("Message handler panic recovered")
			r.report(topic, fmt.Errorf("%w: %v", ErrHandlerPanic, rec))
		}
	}()

	if err := h(topic, payload); err != nil {
		r.logger.Warn().Err(err).Str("topic", topic).Str("handler", kind).Msg("Message handler returned error")
		r.report(topic, err)
	}
}
