package usecase

import (
	"context"
	"sync"

	"github.com/secmon-lab/kottos/pkg/domain/interfaces"
	"github.com/secmon-lab/kottos/pkg/domain/model"
	"github.com/secmon-lab/kottos/pkg/utils/logging"
)

// EventRegistry is a synchronous in-process publish/subscribe registry for
// domain events. A failing subscriber is logged and does not affect the
// publisher or other subscribers.
type EventRegistry struct {
	mu        sync.RWMutex
	listeners map[model.EventType][]interfaces.EventHandler
}

var _ interfaces.Publisher = &EventRegistry{}

// NewEventRegistry creates an empty registry
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		listeners: make(map[model.EventType][]interfaces.EventHandler),
	}
}

// Subscribe registers a handler for the given event type
func (r *EventRegistry) Subscribe(eventType model.EventType, handler interfaces.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

// Publish invokes all handlers registered for the event's type
func (r *EventRegistry) Publish(ctx context.Context, event model.Event) {
	r.mu.RLock()
	handlers := append([]interfaces.EventHandler{}, r.listeners[event.Type]...)
	r.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logging.From(ctx).Error("event handler failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err.Error(),
			)
		}
	}
}
