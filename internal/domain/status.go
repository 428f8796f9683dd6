package domain

import "fmt"

// Status enumerates the student lifecycle states.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusGraduated   Status = "GRADUATED"
	StatusWithdrawn   Status = "WITHDRAWN"
	StatusTransferred Status = "TRANSFERRED"
)

// allowedTransitions lists the legal next states per current state.
// A same-state transition is always legal and is not repeated here.
var allowedTransitions = map[Status][]Status{
	StatusActive:      {StatusInactive, StatusGraduated, StatusWithdrawn, StatusTransferred},
	StatusInactive:    {StatusActive, StatusWithdrawn, StatusTransferred},
	StatusGraduated:   {},
	StatusWithdrawn:   {StatusInactive, StatusTransferred},
	StatusTransferred: {},
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid student status: %q", raw)
	}
	return s, nil
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusGraduated, StatusWithdrawn, StatusTransferred:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
