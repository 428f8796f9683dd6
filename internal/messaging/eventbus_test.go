package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
)

func newStudentEvents(t *testing.T) []domain.Event {
	t.Helper()
	student := domain.NewStudent("S1", "A", time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), "M", domain.ContactInfo{})
	require.NoError(t, student.UpdateStatus(domain.StatusInactive, "test"))
	return student.UncommittedEvents()
}

func TestBusRoutesByEventType(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var created, changed int
	bus.Subscribe(domain.EventTypeStudentCreated, func(ctx context.Context, e domain.Event) error {
		created++
		return nil
	})
	bus.Subscribe(domain.EventTypeStudentStatusChanged, func(ctx context.Context, e domain.Event) error {
		changed++
		return nil
	})

	for _, event := range newStudentEvents(t) {
		require.NoError(t, bus.Publish(context.Background(), event))
	}

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, changed)
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var seen []string
	bus.SubscribeAll(func(ctx context.Context, e domain.Event) error {
		seen = append(seen, e.EventType())
		return nil
	})

	for _, event := range newStudentEvents(t) {
		require.NoError(t, bus.Publish(context.Background(), event))
	}

	assert.Equal(t, []string{domain.EventTypeStudentCreated, domain.EventTypeStudentStatusChanged}, seen)
}

func TestBusIsolatesHandlerFailures(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var delivered int
	bus.SubscribeAll(func(ctx context.Context, e domain.Event) error {
		return errors.New("boom")
	})
	bus.SubscribeAll(func(ctx context.Context, e domain.Event) error {
		delivered++
		return nil
	})

	events := newStudentEvents(t)
	require.NoError(t, bus.Publish(context.Background(), events[0]))
	assert.Equal(t, 1, delivered)
}

func TestBusNoHandlers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	events := newStudentEvents(t)
	assert.NoError(t, bus.Publish(context.Background(), events[0]))
}
