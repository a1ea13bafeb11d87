package events

import (
	"sync"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.subscribers == nil {
		t.Error("subscribers map not initialized")
	}
	if bus.closed {
		t.Error("new bus should not be closed")
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(ConnectionEstablished)

	bus.Publish(Event{
		Type: ConnectionEstablished,
		URL:  "http://localhost:3001",
	})

	select {
	case received := <-ch:
		if received.Type != ConnectionEstablished {
			t.Errorf("expected type %s, got %s", ConnectionEstablished, received.Type)
		}
		if received.URL != "http://localhost:3001" {
			t.Errorf("expected URL 'http://localhost:3001', got '%s'", received.URL)
		}
		if received.Timestamp.IsZero() {
			t.Error("timestamp should be set automatically")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(StockSynced)
	ch2 := bus.Subscribe(StockSynced)
	ch3 := bus.Subscribe(StockSynced)

	bus.Publish(Event{Type: StockSynced, ProductID: "p1"})

	for i, ch := range []<-chan Event{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			if received.ProductID != "p1" {
				t.Errorf("subscriber %d: expected product 'p1', got '%s'", i, received.ProductID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestNonBlockingPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Subscribe with a channel that won't be read
	_ = bus.Subscribe(ConnectionLost)

	// Publish more events than the buffer can hold
	done := make(chan bool)
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(Event{Type: ConnectionLost})
		}
		done <- true
	}()

	select {
	case <-done:
		// Success - publishing didn't block
	case <-time.After(1 * time.Second):
		t.Fatal("publishing blocked even though it should be non-blocking")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TokenStored)

	if count := bus.SubscriberCount(TokenStored); count != 1 {
		t.Errorf("expected 1 subscriber, got %d", count)
	}

	bus.Unsubscribe(TokenStored, ch)

	if count := bus.SubscriberCount(TokenStored); count != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", count)
	}

	bus.Publish(Event{Type: TokenStored})

	select {
	case <-ch:
		t.Error("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
		// Expected - no event should be received
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				bus.Publish(Event{
					Type: StockRolledBack,
					Data: map[string]interface{}{
						"publisher": id,
						"seq":       j,
					},
				})
			}
		}(i)
	}

	received := make([]int, numGoroutines)
	var mu sync.Mutex

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			ch := bus.Subscribe(StockRolledBack)
			timeout := time.After(2 * time.Second)

			for {
				select {
				case <-ch:
					mu.Lock()
					received[id]++
					mu.Unlock()
				case <-timeout:
					return
				}
			}
		}(i)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	totalReceived := 0
	for _, count := range received {
		totalReceived += count
	}

	if totalReceived == 0 {
		t.Error("no events received by any subscriber")
	}
}

func TestClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe(ConnectionEstablished)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("channel should be closed after bus.Close()")
	}

	if !bus.IsClosed() {
		t.Error("IsClosed() should return true after Close()")
	}

	// Publishing after close should not panic
	bus.Publish(Event{Type: ConnectionEstablished})

	ch2 := bus.Subscribe(TokenCleared)
	_, ok = <-ch2
	if ok {
		t.Error("subscribing after close should return closed channel")
	}
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	if count := bus.SubscriberCount(StockSynced); count != 0 {
		t.Errorf("expected 0 initial subscribers, got %d", count)
	}

	_ = bus.Subscribe(StockSynced)
	_ = bus.Subscribe(StockSynced)
	_ = bus.Subscribe(TokenStored)

	if count := bus.SubscriberCount(StockSynced); count != 2 {
		t.Errorf("expected 2 subscribers, got %d", count)
	}
	if count := bus.SubscriberCount(TokenStored); count != 1 {
		t.Errorf("expected 1 subscriber, got %d", count)
	}
}
