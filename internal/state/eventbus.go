package state

import (
	"sync"
)

type EventType int

const (
	EventUnknown EventType = iota
	BetCreated
	BetAccepted
	BetRevealed
	BetCanceled
	BetTimedOut
	BalanceSynced
	SweepCompleted
)

func (e EventType) String() string {
	return [...]string{"EventUnknown", "BetCreated", "BetAccepted", "BetRevealed", "BetCanceled", "BetTimedOut", "BalanceSynced", "SweepCompleted"}[e]
}

// EventBus fans events out to subscriber channels. Publishing never
// blocks: a subscriber that cannot receive is dropped.
type EventBus struct {
	subscribers map[string][]chan interface{}
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan interface{}),
	}
}

func (eb *EventBus) Subscribe(eventType EventType, ch chan interface{}) {
	if ch == nil {
		panic("channel == nil")
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType.String()] = append(eb.subscribers[eventType.String()], ch)
}

func (eb *EventBus) Publish(eventType EventType, data interface{}) {
	eb.mu.RLock()
	subscribers, ok := eb.subscribers[eventType.String()]
	if !ok {
		eb.mu.RUnlock()
		return
	}
	var dead []int
	for i, ch := range subscribers {
		select {
		case ch <- data:
		default:
			dead = append(dead, i)
		}
	}
	eb.mu.RUnlock()

	if len(dead) == 0 {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	current := eb.subscribers[eventType.String()]
	if len(current) != len(subscribers) {
		// Subscriber set changed underneath us; skip pruning this round.
		return
	}
	kept := current[:0]
	for i, ch := range current {
		drop := false
		for _, d := range dead {
			if d == i {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, ch)
		}
	}
	eb.subscribers[eventType.String()] = kept
}
