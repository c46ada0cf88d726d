// Package eventbus implements the Event Bus: a topic-keyed pub/sub
// mechanism that fans an AnomalyEvent out to every subscriber of its
// topic concurrently, waiting for all handlers to resolve before
// publish returns.
package eventbus

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/telemetry"
)

// Handler receives a published AnomalyEvent. A returned error is
// captured and logged but never propagated to other handlers or to
// the publisher.
type Handler func(event model.AnomalyEvent) error

// Bus is a topic-keyed pub/sub dispatcher, grounded in fan-out
// technique on melisai's orchestrator.Run (one goroutine per
// subscriber, a sync.WaitGroup joining them before returning) and in
// API shape on original_source/uatu/events/bus.py's EventBus
// (subscribe/publish/unsubscribe, asyncio.gather(...,
// return_exceptions=True) translated here into goroutines plus a
// per-handler recover, since melisai's collectors return errors rather
// than panicking and so never needed one).
//
// Within a single topic, Publish delivers events to each handler in
// the order they were published by a single caller; Bus does not
// serialize publishes from different goroutines against each other, so
// callers that need strict single-publisher ordering must serialize
// their own Publish calls (the typical case: one Watcher per topic).
type Bus struct {
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics

	mu   sync.RWMutex
	subs map[string][]Handler
}

// New constructs an empty Bus. metrics may be nil to skip instrumentation.
func New(log *zap.SugaredLogger, metrics *telemetry.Metrics) *Bus {
	return &Bus{
		log:     log,
		metrics: metrics,
		subs:    make(map[string][]Handler),
	}
}

// Subscribe registers handler for topic. Publish runs a topic's handlers
// concurrently, so no order among handlers is guaranteed; since Publish
// waits for all of them, one handler sees a single publisher's events
// for a topic in publish order.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Unsubscribe removes a prior registration. If handler was registered
// more than once for topic, only the first matching registration is
// removed.
func (b *Bus) Unsubscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subs[topic]
	target := handlerKey(handler)
	for i, h := range handlers {
		if handlerKey(h) == target {
			b.subs[topic] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every subscriber of topic concurrently and
// returns once all of them have resolved (or panicked). A topic with
// zero subscribers succeeds silently. A handler panic or error is
// captured and logged, never returned to the caller.
func (b *Bus) Publish(topic string, event model.AnomalyEvent) {
	if b.metrics != nil {
		b.metrics.EventsPublishedTotal.WithLabelValues(event.Type.String()).Inc()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			b.runHandler(topic, h, event)
		}(h)
	}
	wg.Wait()
}

func (b *Bus) runHandler(topic string, h Handler, event model.AnomalyEvent) {
	defer func() {
		if r := recover(); r != nil {
			if b.log != nil {
				b.log.Errorw("event bus handler panicked", "topic", topic, "panic", r)
			}
		}
	}()
	if err := h(event); err != nil && b.log != nil {
		b.log.Warnw("event bus handler failed", "topic", topic, "error", err)
	}
}

// handlerKey gives a comparison key for a func value (its code pointer),
// used only for Unsubscribe's match (func values aren't otherwise
// comparable). Closures made from the same function literal share a key.
func handlerKey(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}
