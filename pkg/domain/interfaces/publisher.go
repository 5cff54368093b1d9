package interfaces

import (
	"context"

	"github.com/secmon-lab/kottos/pkg/domain/model"
)

// EventHandler handles a published domain event
type EventHandler func(ctx context.Context, event model.Event) error

// Publisher is an in-process publish/subscribe registry for domain events.
// Publication does not wait for or depend on subscriber outcomes.
type Publisher interface {
	Publish(ctx context.Context, event model.Event)
	Subscribe(eventType model.EventType, handler EventHandler)
}
