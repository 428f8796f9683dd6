package domain

// AggregateRoot buffers domain events raised by an entity until the
// application service drains and publishes them. It carries no persistence
// or transport knowledge.
//
// Embed it by value; the zero value is ready to use.
type AggregateRoot struct {
	events []Event
}

// RecordEvent appends an event to the uncommitted buffer.
func (a *AggregateRoot) RecordEvent(event Event) {
	a.events = append(a.events, event)
}

// UncommittedEvents returns a snapshot of the buffered events in the order
// they were recorded. Mutating the returned slice does not affect the buffer.
func (a *AggregateRoot) UncommittedEvents() []Event {
	if len(a.events) == 0 {
		return nil
	}
	snapshot := make([]Event, len(a.events))
	copy(snapshot, a.events)
	return snapshot
}

// ClearEvents empties the buffer. Safe to call repeatedly.
func (a *AggregateRoot) ClearEvents() {
	a.events = nil
}
