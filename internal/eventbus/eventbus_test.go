package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New(nil, nil)
	var count int32
	var wg sync.WaitGroup
	wg.Add(2)

	b.Subscribe("anomaly.cpu", func(e model.AnomalyEvent) error {
		defer wg.Done()
		atomic.AddInt32(&count, 1)
		return nil
	})
	b.Subscribe("anomaly.cpu", func(e model.AnomalyEvent) error {
		defer wg.Done()
		atomic.AddInt32(&count, 1)
		return nil
	})

	b.Publish("anomaly.cpu", model.AnomalyEvent{})
	wg.Wait()

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestPublishWithNoSubscribersSucceeds(t *testing.T) {
	b := New(nil, nil)
	done := make(chan struct{})
	go func() {
		b.Publish("anomaly.unused", model.AnomalyEvent{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish with no subscribers should return immediately")
	}
}

func TestPublishIsolatesHandlerPanics(t *testing.T) {
	b := New(nil, nil)
	var ran int32

	b.Subscribe("anomaly.memory", func(e model.AnomalyEvent) error {
		panic("boom")
	})
	b.Subscribe("anomaly.memory", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	b.Publish("anomaly.memory", model.AnomalyEvent{})

	if atomic.LoadInt32(&ran) != 1 {
		t.Error("sibling handler should still run when another panics")
	}
}

func TestPublishIsolatesHandlerErrors(t *testing.T) {
	b := New(nil, nil)
	var ran int32

	b.Subscribe("anomaly.load", func(e model.AnomalyEvent) error {
		return errors.New("handler failed")
	})
	b.Subscribe("anomaly.load", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	b.Publish("anomaly.load", model.AnomalyEvent{})

	if atomic.LoadInt32(&ran) != 1 {
		t.Error("sibling handler should still run when another errors")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil, nil)
	var count int32
	handler := func(e model.AnomalyEvent) error {
		atomic.AddInt32(&count, 1)
		return nil
	}

	b.Subscribe("anomaly.process_crash", handler)
	b.Publish("anomaly.process_crash", model.AnomalyEvent{})
	b.Unsubscribe("anomaly.process_crash", handler)
	b.Publish("anomaly.process_crash", model.AnomalyEvent{})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("count = %d, want 1 (only the first publish should have been delivered)", count)
	}
}

func TestPublishPerTopicOrderingForSingleHandler(t *testing.T) {
	b := New(nil, nil)
	var mu sync.Mutex
	var order []int

	b.Subscribe("anomaly.cpu", func(e model.AnomalyEvent) error {
		mu.Lock()
		order = append(order, len(e.Message))
		mu.Unlock()
		return nil
	})

	b.Publish("anomaly.cpu", model.AnomalyEvent{Message: "a"})
	b.Publish("anomaly.cpu", model.AnomalyEvent{Message: "bb"})
	b.Publish("anomaly.cpu", model.AnomalyEvent{Message: "ccc"})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}
