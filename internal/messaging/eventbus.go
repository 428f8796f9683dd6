package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
)

// Handler consumes one domain event. Handler errors are logged and swallowed;
// event delivery is fire-and-forget and never fails the originating use case.
type Handler func(ctx context.Context, event domain.Event) error

// Bus is an in-process event bus implementing the domain publisher port.
// Handlers run synchronously in subscription order, so events reach
// subscribers in the order the aggregate recorded them.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	allHandlers []Handler
	logger      *zap.Logger
}

// NewBus constructs an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish delivers the event to matching handlers. A failing handler does not
// stop delivery to the remaining ones.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	if event == nil {
		return nil
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", zap.String("event_type", event.EventType()))
		return nil
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID()),
				zap.Error(err),
			)
		}
	}

	return nil
}
