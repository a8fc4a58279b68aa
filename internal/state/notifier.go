package state

import (
	log "github.com/sirupsen/logrus"
)

// Notifier is the fire-and-forget emit contract toward the notification
// fan-out. No acknowledgement is expected and no delivery is guaranteed.
type Notifier struct {
	bus *EventBus
}

func NewNotifier(bus *EventBus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) Emit(eventType EventType, payload interface{}) {
	log.Debugf("Emit %s", eventType)
	n.bus.Publish(eventType, payload)
}
