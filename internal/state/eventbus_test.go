package state

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	testLen := 1000
	exist := make(chan struct{}, testLen)
	wg := sync.WaitGroup{}
	count := atomic.Uint64{}
	for i := 0; i < testLen; i++ {
		ch := make(chan interface{}, 1)
		bus.Subscribe(BetCreated, ch)
		wg.Add(1)
		go func() {
			exist <- struct{}{}
			result := <-ch
			assert.Equal(t, "OK", result)
			count.Add(1)
			wg.Done()
		}()
	}
	for i := 0; i < testLen; i++ {
		<-exist
	}
	bus.Publish(BetCreated, "OK")
	wg.Wait()
	assert.Equal(t, uint64(testLen), count.Load())
}

func TestEventBusDropsDeadSubscribers(t *testing.T) {
	bus := NewEventBus()

	dead := make(chan interface{}) // unbuffered, never drained
	live := make(chan interface{}, 2)
	bus.Subscribe(BalanceSynced, dead)
	bus.Subscribe(BalanceSynced, live)

	bus.Publish(BalanceSynced, "first")
	assert.Equal(t, "first", <-live)

	// The blocked subscriber was pruned; the live one still receives.
	bus.Publish(BalanceSynced, "second")
	assert.Equal(t, "second", <-live)
	assert.Len(t, bus.subscribers[BalanceSynced.String()], 1)
}

func TestEventBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Must not panic or block.
	bus.Publish(SweepCompleted, "nobody listening")
}

func TestNotifierEmit(t *testing.T) {
	bus := NewEventBus()
	notifier := NewNotifier(bus)

	ch := make(chan interface{}, 1)
	bus.Subscribe(SweepCompleted, ch)

	notifier.Emit(SweepCompleted, 42)
	assert.Equal(t, 42, <-ch)
}
