package domain

import (
	"fmt"
	"time"

	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
)

// Student is the aggregate root of the student lifecycle. All invariants are
// enforced here: status transitions follow the lifecycle table, at most one
// guardian is primary, and the graduation date is set exactly when the
// student graduates. State is mutated only through the behavior methods.
type Student struct {
	AggregateRoot `json:"-"`

	// ID is the surrogate identity assigned by storage on first save.
	ID string `json:"id"`
	// StudentID is the immutable business identifier (student number).
	StudentID string `json:"student_id"`

	Name           string       `json:"name"`
	DateOfBirth    time.Time    `json:"date_of_birth"`
	Gender         string       `json:"gender"`
	Contact        ContactInfo  `json:"contact"`
	ClassID        *string      `json:"class_id,omitempty"`
	Status         Status       `json:"status"`
	EnrollmentDate time.Time    `json:"enrollment_date"`
	GraduationDate *time.Time   `json:"graduation_date,omitempty"`
	Parents        []ParentInfo `json:"parents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"-"`
}

// StudentSnapshot is the point-in-time state carried inside domain events.
type StudentSnapshot struct {
	ID             string      `json:"id,omitempty"`
	StudentID      string      `json:"student_id"`
	Name           string      `json:"name"`
	DateOfBirth    time.Time   `json:"date_of_birth"`
	Gender         string      `json:"gender"`
	Contact        ContactInfo `json:"contact"`
	ClassID        *string     `json:"class_id,omitempty"`
	Status         Status      `json:"status"`
	EnrollmentDate time.Time   `json:"enrollment_date"`
	GraduationDate *time.Time  `json:"graduation_date,omitempty"`
}

// NewStudent is the factory for the aggregate. The caller is responsible for
// checking business-id uniqueness beforehand; the factory itself never fails.
// The new student is ACTIVE, enrolled today, and carries one buffered
// StudentCreated event.
func NewStudent(studentID, name string, dateOfBirth time.Time, gender string, contact ContactInfo) *Student {
	s := &Student{
		StudentID:      studentID,
		Name:           name,
		DateOfBirth:    dateOfBirth,
		Gender:         gender,
		Contact:        contact,
		Status:         StatusActive,
		EnrollmentDate: time.Now().UTC(),
		Parents:        []ParentInfo{},
	}
	s.RecordEvent(newStudentCreated(s))
	return s
}

// Snapshot returns a copy of the current aggregate state for embedding in
// events. The class id pointer is cloned so the snapshot stays immutable.
func (s *Student) Snapshot() StudentSnapshot {
	snap := StudentSnapshot{
		ID:             s.ID,
		StudentID:      s.StudentID,
		Name:           s.Name,
		DateOfBirth:    s.DateOfBirth,
		Gender:         s.Gender,
		Contact:        s.Contact,
		Status:         s.Status,
		EnrollmentDate: s.EnrollmentDate,
	}
	if s.ClassID != nil {
		classID := *s.ClassID
		snap.ClassID = &classID
	}
	if s.GraduationDate != nil {
		graduated := *s.GraduationDate
		snap.GraduationDate = &graduated
	}
	return snap
}

// UpdateStatus moves the student along the lifecycle state machine. Illegal
// edges fail with an INVALID_STATE_TRANSITION error and leave the aggregate
// untouched. A same-state transition is always legal. Entering GRADUATED
// stamps the graduation date; a GRADUATED -> GRADUATED no-op keeps it.
func (s *Student) UpdateStatus(newStatus Status, reason string) error {
	if !s.Status.CanTransitionTo(newStatus) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition student status from %s to %s", s.Status, newStatus))
	}

	oldStatus := s.Status
	s.Status = newStatus

	if newStatus == StatusGraduated && oldStatus != StatusGraduated {
		now := time.Now().UTC()
		s.GraduationDate = &now
	}

	s.RecordEvent(newStudentStatusChanged(s, oldStatus, newStatus, reason))
	return nil
}

// AddParent registers a guardian. When the new entry is primary, every
// existing guardian is demoted first so at most one primary exists.
func (s *Student) AddParent(parent ParentInfo) {
	if parent.IsPrimary {
		for i := range s.Parents {
			s.Parents[i].IsPrimary = false
		}
	}
	s.Parents = append(s.Parents, parent)
	s.RecordEvent(newParentAdded(s, parent))
}

// UpdateProfile replaces the student's name and contact info.
func (s *Student) UpdateProfile(name string, contact ContactInfo) {
	s.Name = name
	s.Contact = contact
}

// AssignClass places the student into a class.
func (s *Student) AssignClass(classID string) {
	s.ClassID = &classID
}

// Age returns the student's age in whole years as of today.
func (s *Student) Age() int {
	now := time.Now().UTC()
	years := now.Year() - s.DateOfBirth.Year()
	anniversary := s.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// IsActive reports whether the student is currently enrolled and active.
func (s *Student) IsActive() bool {
	return s.Status == StatusActive
}

// IsGraduated reports whether the student has graduated.
func (s *Student) IsGraduated() bool {
	return s.Status == StatusGraduated
}

// PrimaryParent returns the primary guardian, if one is registered.
func (s *Student) PrimaryParent() (ParentInfo, bool) {
	for _, p := range s.Parents {
		if p.IsPrimary {
			return p, true
		}
	}
	return ParentInfo{}, false
}
