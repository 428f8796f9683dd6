package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type codes used for publisher routing.
const (
	EventTypeStudentCreated       = "StudentCreated"
	EventTypeStudentStatusChanged = "StudentStatusChanged"
	EventTypeParentAdded          = "ParentAdded"
)

// Event is an immutable fact describing something that happened to an
// aggregate. Events are notifications, not the system of record.
type Event interface {
	EventID() string
	AggregateID() string
	OccurredAt() time.Time
	EventType() string
}

type baseEvent struct {
	eventID     string
	aggregateID string
	occurredAt  time.Time
	eventType   string
}

func newBaseEvent(aggregateID, eventType string) baseEvent {
	return baseEvent{
		eventID:     uuid.NewString(),
		aggregateID: aggregateID,
		occurredAt:  time.Now().UTC(),
		eventType:   eventType,
	}
}

func (e baseEvent) EventID() string       { return e.eventID }
func (e baseEvent) AggregateID() string   { return e.aggregateID }
func (e baseEvent) OccurredAt() time.Time { return e.occurredAt }
func (e baseEvent) EventType() string     { return e.eventType }

// StudentCreated is raised once when a student enters the system.
type StudentCreated struct {
	baseEvent
	Student StudentSnapshot
}

func newStudentCreated(s *Student) StudentCreated {
	return StudentCreated{
		baseEvent: newBaseEvent(s.StudentID, EventTypeStudentCreated),
		Student:   s.Snapshot(),
	}
}

// StudentStatusChanged is raised on every legal status transition.
type StudentStatusChanged struct {
	baseEvent
	Student   StudentSnapshot
	OldStatus Status
	NewStatus Status
	Reason    string
}

func newStudentStatusChanged(s *Student, oldStatus, newStatus Status, reason string) StudentStatusChanged {
	return StudentStatusChanged{
		baseEvent: newBaseEvent(s.StudentID, EventTypeStudentStatusChanged),
		Student:   s.Snapshot(),
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
	}
}

// ParentAdded is raised when a guardian is registered for a student.
type ParentAdded struct {
	baseEvent
	Student StudentSnapshot
	Parent  ParentInfo
}

func newParentAdded(s *Student, parent ParentInfo) ParentAdded {
	return ParentAdded{
		baseEvent: newBaseEvent(s.StudentID, EventTypeParentAdded),
		Student:   s.Snapshot(),
		Parent:    parent,
	}
}
