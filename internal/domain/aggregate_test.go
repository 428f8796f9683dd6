package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateRootBuffersEventsInOrder(t *testing.T) {
	var root AggregateRoot
	first := newBaseEvent("S1", EventTypeStudentCreated)
	second := newBaseEvent("S1", EventTypeStudentStatusChanged)

	root.RecordEvent(first)
	root.RecordEvent(second)

	events := root.UncommittedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeStudentCreated, events[0].EventType())
	assert.Equal(t, EventTypeStudentStatusChanged, events[1].EventType())
}

func TestAggregateRootSnapshotIsDetached(t *testing.T) {
	var root AggregateRoot
	root.RecordEvent(newBaseEvent("S1", EventTypeStudentCreated))

	snapshot := root.UncommittedEvents()
	snapshot[0] = newBaseEvent("S2", EventTypeParentAdded)

	events := root.UncommittedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "S1", events[0].AggregateID())
}

func TestAggregateRootClearIsIdempotent(t *testing.T) {
	var root AggregateRoot
	root.RecordEvent(newBaseEvent("S1", EventTypeStudentCreated))

	root.ClearEvents()
	assert.Empty(t, root.UncommittedEvents())

	root.ClearEvents()
	assert.Empty(t, root.UncommittedEvents())
}
